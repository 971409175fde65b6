package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

type blogApi struct {
	svc      blog.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerBlogAPI(g *echo.Group, authed, optAuth echo.MiddlewareFunc, opts *Options) {
	api := blogApi{
		svc:      opts.BlogSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}
	admin := []echo.MiddlewareFunc{authed, activeUserMiddleware(api.usrSvc), adminMiddleware()}

	bg := g.Group("/blog")

	bg.GET("/categories", api.queryCategories)
	bg.GET("/categories/:slug", api.retrieveCategory)
	bg.POST("/categories", api.createCategory, admin...)
	bg.PUT("/categories/:id", api.updateCategory, admin...)
	bg.DELETE("/categories/:id", api.destroyCategory, admin...)

	bg.GET("/posts", api.queryPosts, optAuth)
	bg.GET("/posts/:slug", api.retrievePost, optAuth)
	bg.POST("/posts", api.createPost, admin...)
	bg.PUT("/posts/:id", api.updatePost, admin...)
	bg.DELETE("/posts/:id", api.destroyPost, admin...)
	bg.POST("/posts/:id/publish", api.publishPost, admin...)
	bg.POST("/posts/:id/unpublish", api.unpublishPost, admin...)
}

func contextIsAdmin(ctx echo.Context) bool {
	claims, err := getContextClaims(ctx)
	return err == nil && claims.IsAdmin
}

// Categories

func (api *blogApi) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.ListCategories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing categories")
	}
	if cats == nil {
		cats = []blog.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *blogApi) retrieveCategory(ctx echo.Context) error {
	cat, err := api.svc.GetCategory(ctx.Request().Context(), blog.GetFilter{Slug: ctx.Param("slug")})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *blogApi) createCategory(ctx echo.Context) error {
	var data blog.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *blogApi) updateCategory(ctx echo.Context) error {
	cat, err := api.svc.GetCategory(ctx.Request().Context(), blog.GetFilter{ID: ctx.Param("id")})
	if err != nil {
		return err
	}

	var data blog.NewCategory
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cat, err = api.svc.UpdateCategory(ctx.Request().Context(), cat, data)
	if err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *blogApi) destroyCategory(ctx echo.Context) error {
	if err := api.svc.DeleteCategory(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Posts

func (api *blogApi) queryPosts(ctx echo.Context) error {
	filter := new(blog.PostFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, PageResponse{Results: []blog.Post{}})
	}
	filter.Clean()
	if !contextIsAdmin(ctx) {
		filter.Status = blog.StatusPublished
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	posts, count, err := api.svc.QueryPosts(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying posts")
	}
	if posts == nil {
		posts = []blog.Post{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Count: count, Results: posts})
}

func (api *blogApi) retrievePost(ctx echo.Context) error {
	post, err := api.svc.GetPost(ctx.Request().Context(), blog.GetFilter{Slug: ctx.Param("slug")})
	if err != nil {
		return err
	}
	if !post.IsPublished() && !contextIsAdmin(ctx) {
		return blog.ErrPostNotFound
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *blogApi) getPost(ctx echo.Context) (blog.Post, error) {
	return api.svc.GetPost(ctx.Request().Context(), blog.GetFilter{ID: ctx.Param("id")})
}

func (api *blogApi) createPost(ctx echo.Context) error {
	var data blog.NewPost
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	author, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	post, err := api.svc.CreatePost(ctx.Request().Context(), author, data)
	if err != nil {
		return errors.Wrap(err, "creating post")
	}
	return ctx.JSON(http.StatusCreated, post)
}

func (api *blogApi) updatePost(ctx echo.Context) error {
	post, err := api.getPost(ctx)
	if err != nil {
		return err
	}

	var data blog.NewPost
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	post, err = api.svc.UpdatePost(ctx.Request().Context(), post, data)
	if err != nil {
		return errors.Wrap(err, "updating post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *blogApi) destroyPost(ctx echo.Context) error {
	if err := api.svc.DeletePost(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *blogApi) publishPost(ctx echo.Context) error {
	post, err := api.getPost(ctx)
	if err != nil {
		return err
	}
	post, err = api.svc.Publish(ctx.Request().Context(), post)
	if err != nil {
		return errors.Wrap(err, "publishing post")
	}
	return ctx.JSON(http.StatusOK, post)
}

func (api *blogApi) unpublishPost(ctx echo.Context) error {
	post, err := api.getPost(ctx)
	if err != nil {
		return err
	}
	post, err = api.svc.Unpublish(ctx.Request().Context(), post)
	if err != nil {
		return errors.Wrap(err, "unpublishing post")
	}
	return ctx.JSON(http.StatusOK, post)
}
