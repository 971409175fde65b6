package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/geoffroyotegbeye/codesens/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads `limit` and `offset`. Invalid values fall back to the defaults.
func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	_ = echo.QueryParamsBinder(ctx).
		Int("limit", &page.Limit).
		Int("offset", &page.Offset).
		BindError()
	page.Clean()
	return page
}

// PageResponse is a window of a listing along with the total number of matching items.
type PageResponse struct {
	Count   int         `json:"count"`
	Results interface{} `json:"results"`
}
