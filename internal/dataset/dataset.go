package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/spam-detection/backend/internal/errors"
	"github.com/spam-detection/backend/internal/model"
)

// Required column headers.
const (
	LabelColumn   = "Spam/Ham"
	SubjectColumn = "Subject"
	MessageColumn = "Message"
)

// Cleaner rewrites free-text fields before training.
type Cleaner func(string) string

// Load reads a labeled CSV dataset from path.
func Load(path string, clean Cleaner) ([]model.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidDataset, err)
	}
	defer f.Close()
	return Read(f, clean)
}

// Read parses CSV with a header row holding at least the Spam/Ham, Subject and
// Message columns. Labels are validated; a nil clean leaves text untouched.
func Read(r io.Reader, clean Cleaner) ([]model.Example, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: dataset is empty", apperrors.ErrInvalidDataset)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", apperrors.ErrInvalidDataset, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	var missing []string
	for _, name := range []string{LabelColumn, SubjectColumn, MessageColumn} {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: dataset must contain %q, %q and %q columns, missing %s",
			apperrors.ErrInvalidDataset, LabelColumn, SubjectColumn, MessageColumn, strings.Join(missing, ", "))
	}

	field := func(record []string, name string) string {
		if i := columns[name]; i < len(record) {
			return record[i]
		}
		return ""
	}

	var examples []model.Example
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidDataset, err)
		}
		line, _ := reader.FieldPos(0)

		label := field(record, LabelColumn)
		if _, err := model.ParseLabel(label); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ex := model.Example{
			Subject: field(record, SubjectColumn),
			Message: field(record, MessageColumn),
			Label:   label,
		}
		if clean != nil {
			ex.Subject = clean(ex.Subject)
			ex.Message = clean(ex.Message)
		}
		examples = append(examples, ex)
	}

	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: dataset has no rows", apperrors.ErrInvalidDataset)
	}
	return examples, nil
}
