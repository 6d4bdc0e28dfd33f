package service

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-cms-api/internal/repository"
	appErrors "github.com/noah-isme/course-cms-api/pkg/errors"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Intro to Go":              "intro-to-go",
		"  Ünïcödé   Títle  ":      "unicode-title",
		"C++ & Rust: a comparison": "c-rust-a-comparison",
		"already-a-slug":           "already-a-slug",
		"!!!":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestSlugValidation(t *testing.T) {
	v := validator.New()
	registerSlugValidation(v)

	type payload struct {
		Slug string `validate:"slug"`
	}
	assert.NoError(t, v.Struct(payload{Slug: "go-101"}))
	assert.NoError(t, v.Struct(payload{}))
	assert.Error(t, v.Struct(payload{Slug: "Go 101"}))
	assert.Error(t, v.Struct(payload{Slug: "trailing-"}))
}

func TestSlugWriteError(t *testing.T) {
	raced := slugWriteError(fmt.Errorf("create course: %w", repository.ErrDuplicateSlug), "course", "failed to create course")
	assert.ErrorIs(t, raced, appErrors.ErrConflict)
	assert.Equal(t, http.StatusConflict, raced.Status)
	assert.Equal(t, "course slug already exists", raced.Message)

	other := slugWriteError(errors.New("connection reset"), "course", "failed to create course")
	assert.ErrorIs(t, other, appErrors.ErrInternal)
	assert.Equal(t, "failed to create course", other.Message)
}
