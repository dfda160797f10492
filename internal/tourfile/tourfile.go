// Package tourfile reads and writes tours as JSON documents.
package tourfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"tourguide/internal/entity"
	"tourguide/pkg/apperr"

	"github.com/google/uuid"
)

var ErrStepNotFound = errors.New("step not found")

// Decode parses a tour, fills missing tour and step ids and sorts steps by order.
func Decode(r io.Reader) (*entity.Tour, error) {
	const op = "Decode"

	var tour entity.Tour

	dec := json.NewDecoder(r)
	if err := dec.Decode(&tour); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInvalidArgument, err, map[string]any{
			apperr.MetaReason: "malformed_tour",
			apperr.MetaStage:  apperr.StageTourFile,
		})
	}

	Normalize(&tour)

	return &tour, nil
}

// Normalize fills missing ids and orders steps. Steps sharing an order keep their file order.
func Normalize(tour *entity.Tour) {
	if tour.ID == uuid.Nil {
		tour.ID = uuid.New()
	}

	for i := range tour.Steps {
		if tour.Steps[i].ID == uuid.Nil {
			tour.Steps[i].ID = uuid.New()
		}
	}

	sort.SliceStable(tour.Steps, func(i, j int) bool {
		return tour.Steps[i].Order < tour.Steps[j].Order
	})
}

func Encode(w io.Writer, tour *entity.Tour) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(tour)
}

func Load(path string) (*entity.Tour, error) {
	const op = "Load"

	data, err := os.ReadFile(path)
	if err != nil {
		code := apperr.CodeInternal
		if errors.Is(err, os.ErrNotExist) {
			code = apperr.CodeNotFound
		}

		return nil, apperr.Wrap(op, code, err, map[string]any{
			apperr.MetaReason: "read_failed",
			apperr.MetaStage:  apperr.StageTourFile,
			apperr.MetaPath:   path,
		})
	}

	return Decode(bytes.NewReader(data))
}

// Save writes tour atomically: a temp file in the same directory is renamed over path.
func Save(path string, tour *entity.Tour) error {
	const op = "Save"

	var buf bytes.Buffer
	if err := Encode(&buf, tour); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "encode_failed",
			apperr.MetaStage:  apperr.StageTourFile,
		})
	}

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tour-*.json")
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "create_temp_failed",
			apperr.MetaStage:  apperr.StageTourFile,
			apperr.MetaPath:   dir,
		})
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()

		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "write_failed",
			apperr.MetaStage:  apperr.StageTourFile,
			apperr.MetaPath:   path,
		})
	}

	if err := tmp.Close(); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "close_failed",
			apperr.MetaStage:  apperr.StageTourFile,
			apperr.MetaPath:   path,
		})
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "rename_failed",
			apperr.MetaStage:  apperr.StageTourFile,
			apperr.MetaPath:   path,
		})
	}

	return nil
}

// FindStep looks a step up by its id.
func FindStep(tour *entity.Tour, id string) (*entity.Step, error) {
	const op = "FindStep"

	want, err := uuid.Parse(id)
	if err != nil {
		return nil, apperr.InvalidReqError(op, "step", err)
	}

	for i := range tour.Steps {
		if tour.Steps[i].ID == want {
			return &tour.Steps[i], nil
		}
	}

	return nil, apperr.NotFoundError(op, fmt.Errorf("%w: %s", ErrStepNotFound, id))
}

// AppendStep adds step after the last one, assigning the next order and an id when missing.
func AppendStep(tour *entity.Tour, step entity.Step) entity.Step {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}

	next := 0
	for _, s := range tour.Steps {
		if s.Order >= next {
			next = s.Order + 1
		}
	}
	step.Order = next

	tour.Steps = append(tour.Steps, step)

	return step
}
