package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
)

type (
	seedFile struct {
		Categories   []seedCategory    `yaml:"categories"`
		PricingPlans []seedPricingPlan `yaml:"pricing_plans"`
		Courses      []seedCourse      `yaml:"courses"`
	}

	seedCategory struct {
		Name        string `yaml:"name"`
		Slug        string `yaml:"slug"`
		Description string `yaml:"description"`
	}

	seedPricingPlan struct {
		Name            string `yaml:"name"`
		Description     string `yaml:"description"`
		DurationMinutes int    `yaml:"duration_minutes"`
		PriceCents      int64  `yaml:"price_cents"`
		Currency        string `yaml:"currency"`
	}

	seedCourse struct {
		Title           string `yaml:"title"`
		Slug            string `yaml:"slug"`
		Summary         string `yaml:"summary"`
		Description     string `yaml:"description"`
		Category        string `yaml:"category"`   // category slug
		Instructor      string `yaml:"instructor"` // username or email
		Level           string `yaml:"level"`
		PriceCents      int64  `yaml:"price_cents"`
		Currency        string `yaml:"currency"`
		ThumbnailURL    string `yaml:"thumbnail_url"`
		DurationMinutes int    `yaml:"duration_minutes"`
		Published       bool   `yaml:"published"`
	}

	seedReport struct {
		created, skipped int
	}
)

func (r seedReport) String() string {
	return fmt.Sprintf("%d created, %d skipped", r.created, r.skipped)
}

func readSeedFile(path string) (seedFile, error) {
	var sf seedFile
	f, err := os.Open(path)
	if err != nil {
		return sf, errors.Wrap(err, "opening seed file")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&sf); err != nil {
		return sf, errors.Wrap(err, "decoding seed file")
	}
	return sf, nil
}

// seed loads the content of a YAML file. Entries that already exist (by slug, or by name for
// pricing plans) are left untouched so the same file can be loaded any number of times.
func (cli *commandLine) seed(path string) error {
	sf, err := readSeedFile(path)
	if err != nil {
		return err
	}
	ctx := context.Background()

	report, err := cli.seedCategories(ctx, sf.Categories)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "categories: %s\n", report)

	if report, err = cli.seedPricingPlans(ctx, sf.PricingPlans); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "pricing plans: %s\n", report)

	if report, err = cli.seedCourses(ctx, sf.Courses); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "courses: %s\n", report)
	return nil
}

func (cli *commandLine) seedCategories(ctx context.Context, cats []seedCategory) (seedReport, error) {
	var report seedReport
	for _, sc := range cats {
		nc := blog.NewCategory{Name: sc.Name, Slug: sc.Slug, Description: sc.Description}
		if err := nc.Validate(cli.validate); err != nil {
			return report, errors.Wrapf(err, "category %q", sc.Name)
		}
		slug := nc.Slug
		if slug == "" {
			slug = core.Slugify(nc.Name)
		}
		_, err := cli.blogSvc.GetCategory(ctx, blog.GetFilter{Slug: slug})
		if err == nil {
			report.skipped++
			continue
		}
		if errors.Cause(err) != blog.ErrCategoryNotFound {
			return report, err
		}
		if _, err = cli.blogSvc.CreateCategory(ctx, nc); err != nil {
			return report, errors.Wrapf(err, "category %q", sc.Name)
		}
		report.created++
	}
	return report, nil
}

func (cli *commandLine) seedPricingPlans(ctx context.Context, plans []seedPricingPlan) (seedReport, error) {
	var report seedReport
	existing, err := cli.mentoringSvc.QueryPricingPlans(ctx, false)
	if err != nil {
		return report, err
	}
	exists := func(name string) bool {
		for _, p := range existing {
			if strings.EqualFold(p.Name, name) {
				return true
			}
		}
		return false
	}

	for _, sp := range plans {
		np := mentoring.NewPricingPlan{
			Name:            sp.Name,
			Description:     sp.Description,
			DurationMinutes: sp.DurationMinutes,
			PriceCents:      sp.PriceCents,
			Currency:        sp.Currency,
		}
		if err = np.Validate(cli.validate); err != nil {
			return report, errors.Wrapf(err, "pricing plan %q", sp.Name)
		}
		if exists(np.Name) {
			report.skipped++
			continue
		}
		plan, err := cli.mentoringSvc.CreatePricingPlan(ctx, np)
		if err != nil {
			return report, errors.Wrapf(err, "pricing plan %q", sp.Name)
		}
		existing = append(existing, plan)
		report.created++
	}
	return report, nil
}

func (cli *commandLine) seedCourses(ctx context.Context, courses []seedCourse) (seedReport, error) {
	var report seedReport
	for _, sc := range courses {
		nc := catalog.NewCourse{
			Title:           sc.Title,
			Slug:            sc.Slug,
			Summary:         sc.Summary,
			Description:     sc.Description,
			Level:           sc.Level,
			PriceCents:      sc.PriceCents,
			Currency:        sc.Currency,
			ThumbnailURL:    sc.ThumbnailURL,
			DurationMinutes: sc.DurationMinutes,
			IsPublished:     sc.Published,
		}
		if err := nc.Validate(cli.validate); err != nil {
			return report, errors.Wrapf(err, "course %q", sc.Title)
		}
		slug := nc.Slug
		if slug == "" {
			slug = core.Slugify(nc.Title)
		}
		_, err := cli.catalogSvc.Get(ctx, catalog.GetFilter{Slug: slug})
		if err == nil {
			report.skipped++
			continue
		}
		if errors.Cause(err) != catalog.ErrCourseNotFound {
			return report, err
		}

		if sc.Category != "" {
			cat, err := cli.blogSvc.GetCategory(ctx, blog.GetFilter{Slug: sc.Category})
			if err != nil {
				return report, errors.Wrapf(err, "course %q: category %q", sc.Title, sc.Category)
			}
			nc.CategoryID = cat.ID
		}
		if sc.Instructor != "" {
			instructor, err := cli.usrSvc.GetByUsernameOrEmail(ctx, sc.Instructor)
			if err != nil {
				return report, errors.Wrapf(err, "course %q: instructor %q", sc.Title, sc.Instructor)
			}
			nc.InstructorID = instructor.ID
		}
		nc.Slug = slug
		if _, err = cli.catalogSvc.Create(ctx, nc); err != nil {
			return report, errors.Wrapf(err, "course %q", sc.Title)
		}
		report.created++
	}
	return report, nil
}
