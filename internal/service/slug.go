package service

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/course-cms-api/internal/repository"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slugify folds title to lowercase ASCII words joined by hyphens.
func Slugify(title string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, title)
	if err != nil {
		folded = title
	}
	slug := slugSeparator.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// registerSlugValidation adds the "slug" tag; an empty value passes so it can be combined with omitempty.
func registerSlugValidation(v *validator.Validate) {
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || slugPattern.MatchString(value)
	})
}

// slugWriteError maps a failed insert or update. A slug claimed concurrently
// after the uniqueness check surfaces as CONFLICT.
func slugWriteError(err error, entity, message string) *appErrors.Error {
	if errors.Is(err, repository.ErrDuplicateSlug) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, entity+" slug already exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
