package catalog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/catalog/catalogtest"
)

func validSubmission() catalog.Submission {
	return catalog.Submission{
		Name:        "Tool",
		URL:         "https://tool.example/path",
		Description: "A tool",
		Category:    "writing",
	}
}

func TestSubmission_Validate(t *testing.T) {
	long := make([]rune, 101)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name   string
		mutate func(*catalog.Submission)
		ok     bool
	}{
		{"valid", func(*catalog.Submission) {}, true},
		{"valid http", func(s *catalog.Submission) { s.URL = "http://tool.example" }, true},
		{"missing name", func(s *catalog.Submission) { s.Name = "" }, false},
		{"long name", func(s *catalog.Submission) { s.Name = string(long) }, false},
		{"missing description", func(s *catalog.Submission) { s.Description = "" }, false},
		{"bad category", func(s *catalog.Submission) { s.Category = "Not A Slug" }, false},
		{"relative url", func(s *catalog.Submission) { s.URL = "/tool" }, false},
		{"javascript url", func(s *catalog.Submission) { s.URL = "javascript:alert(1)" }, false},
		{"bad email", func(s *catalog.Submission) { s.Email = "nobody" }, false},
		{"too many tags", func(s *catalog.Submission) { s.Tags = make([]string, 21) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, catalog.ErrInvalidSubmission)
			var se *catalog.SubmissionError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestValidSlug(t *testing.T) {
	for _, s := range []string{"chatgpt", "image-gen", "tool_2", "a1"} {
		assert.True(t, catalog.ValidSlug(s), s)
	}
	for _, s := range []string{"", "-lead", "trail-", "a--b", "Caps", "has space", "a/b"} {
		assert.False(t, catalog.ValidSlug(s), s)
	}
}

func TestTool_Helpers(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(24 * time.Hour)

	assert.Equal(t, updated, catalog.Tool{CreatedAt: created, UpdatedAt: updated}.LastModified())
	assert.Equal(t, created, catalog.Tool{CreatedAt: created}.LastModified())
	assert.True(t, catalog.Tool{}.LastModified().IsZero())

	assert.False(t, catalog.Tool{}.Rated())
	assert.False(t, catalog.Tool{Rating: catalogtest.Float(0)}.Rated())
	assert.True(t, catalog.Tool{Rating: catalogtest.Float(3)}.Rated())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "tools:popular:20", catalog.PopularKey(20))
	assert.Equal(t, "tool:chatgpt", catalog.ToolKey("chatgpt"))
	assert.Equal(t, "tools:category:image:50", catalog.CategoryToolsKey("image", 50))
	assert.Equal(t, "tools:search:chat bot:10", catalog.SearchKey("Chat Bot", 10))
	assert.Equal(t, "categories:active", catalog.CategoriesKey())
	assert.Equal(t, "tools:slugs", catalog.SlugsKey())
}
