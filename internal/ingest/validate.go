package ingest

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var slugRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// accepted date layouts, tried in order
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// stageNames maps the transporter's stage codes to the stored display stage.
var stageNames = map[string]string{
	"draft":       "Unsubmitted",
	"submitted":   "Unassigned",
	"assigned":    "Assigned to Editor",
	"review":      "Peer Review",
	"revision":    "Revision",
	"rejected":    "Rejected",
	"accepted":    "Accepted",
	"copyediting": "Editor Copyediting",
	"typesetting": "Typesetting",
	"proofing":    "Proofing",
	"published":   "Published",
}

const defaultStage = "published"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("urlslug", func(fl validator.FieldLevel) bool {
			return slugRe.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("notblank", validators.NotBlank)
		v.RegisterStructValidation(uniqueAuthorSequences, ArticlePayload{})
		_ = v.RegisterValidation("datestamp", func(fl validator.FieldLevel) bool {
			_, err := ParseTime(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
			_, ok := stageNames[fl.Field().String()]
			return ok
		})
		validate = v
	})
	return validate
}

// uniqueAuthorSequences rejects an explicit author sequence already used by an earlier author.
func uniqueAuthorSequences(sl validator.StructLevel) {
	a := sl.Current().Interface().(ArticlePayload)
	seen := make(map[int]bool, len(a.Authors))
	for i, au := range a.Authors {
		if au.Sequence == nil {
			continue
		}
		if seen[*au.Sequence] {
			name := "authors[" + strconv.Itoa(i) + "].sequence"
			sl.ReportError(*au.Sequence, name, "Authors["+strconv.Itoa(i)+"].Sequence", "uniqueseq", "")
			continue
		}
		seen[*au.Sequence] = true
	}
}

// Validate checks a payload and returns a *ValidationError listing every bad field.
func Validate(payload any) error {
	err := validatorInstance().Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return malformed(err.Error())
	}

	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.add(fieldPath(fe.Namespace()), message(fe))
	}
	return out
}

// fieldPath drops the root struct name: "JournalPayload.issues[0].title" -> "issues[0].title".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "notblank":
		return "This field may not be blank."
	case "uniqueseq":
		return "Sequence " + strconv.Itoa(fe.Value().(int)) + " is used by another author."
	case "email":
		return "Enter a valid email address."
	case "url":
		return "Enter a valid URL."
	case "max":
		if fe.Kind() == reflect.String {
			return "Ensure this field has no more than " + fe.Param() + " characters."
		}
		return "Ensure this value is less than or equal to " + fe.Param() + "."
	case "gte":
		return "Ensure this value is greater than or equal to " + fe.Param() + "."
	case "urlslug":
		return "Enter a valid path consisting of letters, numbers, underscores or hyphens."
	case "datestamp":
		return "Datetime has wrong format. Use RFC3339 or YYYY-MM-DD."
	case "stage":
		return `"` + fe.Value().(string) + `" is not a valid stage.`
	default:
		return "Invalid value."
	}
}

// ParseTime accepts RFC3339 timestamps, naive "YYYY-MM-DD[ T]HH:MM:SS" (read as UTC) and plain dates.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseOptionalTime(raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return nil
	}
	return &t
}

// StageName returns the stored stage for a transporter stage code; empty means published.
func StageName(code string) string {
	if code == "" {
		code = defaultStage
	}
	return stageNames[code]
}

// StageCode is the inverse of StageName, used on export.
func StageCode(name string) string {
	for code, n := range stageNames {
		if n == name {
			return code
		}
	}
	return defaultStage
}
