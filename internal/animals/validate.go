package animals

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/alanorth/safari-bingo/internal/models"
)

// ids become file name stems, so they may not contain path separators
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// RecordError reports an invalid row in the animal table
type RecordError struct {
	Line int
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid record at line %d (id %s): %v", e.Line, e.ID, e.Err)
	}
	return fmt.Sprintf("invalid record at line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// rawRow is an unvalidated row as read from the table
type rawRow struct {
	Line       int
	ID         string
	CommonName string
	Image      string
	CropFocus  string
}

// Validate checks a single animal record
func Validate(a models.Animal) error {
	focuses := make([]any, len(models.CropFocuses))
	for i, c := range models.CropFocuses {
		focuses[i] = c
	}

	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required, validation.Match(idPattern).Error("must contain only letters, digits, '.', '_' or '-'")),
		validation.Field(&a.CommonName, validation.Required),
		validation.Field(&a.ImageURL, validation.Required, is.RequestURL, validation.By(httpURL)),
		validation.Field(&a.CropFocus, validation.Required, validation.In(focuses...)),
	)
}

// httpURL only admits absolute http and https URLs, the fetcher speaks nothing else
func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http or https URL")
	}
	return nil
}

func buildAnimals(rows []rawRow) ([]models.Animal, error) {
	animals := make([]models.Animal, 0, len(rows))
	seen := make(map[string]int, len(rows))

	for _, row := range rows {
		focus, err := models.ParseCropFocus(row.CropFocus)
		if err != nil && row.CropFocus != "" {
			return nil, &RecordError{Line: row.Line, ID: row.ID, Err: err}
		}

		animal := models.Animal{
			ID:         row.ID,
			CommonName: row.CommonName,
			ImageURL:   row.Image,
			CropFocus:  focus,
		}
		if err := Validate(animal); err != nil {
			return nil, &RecordError{Line: row.Line, ID: row.ID, Err: err}
		}

		if first, ok := seen[animal.ID]; ok {
			return nil, &RecordError{
				Line: row.Line,
				ID:   row.ID,
				Err:  fmt.Errorf("duplicate id (first seen at line %d)", first),
			}
		}
		seen[animal.ID] = row.Line

		animals = append(animals, animal)
	}

	if len(animals) == 0 {
		return nil, errors.New("animal table has no records")
	}

	return animals, nil
}
