// Package directory holds the clinic's read-only doctor dataset.
package directory

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

//go:embed doctors.yaml
var defaultDataset []byte

// ErrDoctorNotFound is returned when a doctor id is not in the directory.
var ErrDoctorNotFound = errors.New("directory: doctor not found")

// Doctor is an immutable directory entry.
type Doctor struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Specialty string   `yaml:"specialty" json:"specialty"`
	Slots     []string `yaml:"slots" json:"slots"`
}

// OffersSlot reports whether slot is one of the doctor's fixed slot labels.
func (d Doctor) OffersSlot(slot string) bool {
	for _, s := range d.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// Surname returns the lower-cased last word of the doctor's name.
func (d Doctor) Surname() string {
	fields := strings.Fields(strings.ToLower(d.Name))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], ".,'")
}

// Directory is an ordered, read-only list of doctors.
type Directory struct {
	doctors []Doctor
	byID    map[string]int
}

// New builds a directory from doctors, preserving their order.
func New(doctors []Doctor) *Directory {
	d := &Directory{
		doctors: make([]Doctor, 0, len(doctors)),
		byID:    make(map[string]int, len(doctors)),
	}
	for _, doc := range doctors {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			continue
		}
		if _, dup := d.byID[id]; dup {
			continue
		}
		doc.ID = id
		doc.Slots = append([]string(nil), doc.Slots...)
		d.byID[id] = len(d.doctors)
		d.doctors = append(d.doctors, doc)
	}
	return d
}

// Parse decodes a YAML or JSON doctor list.
func Parse(data []byte) ([]Doctor, error) {
	var doctors []Doctor
	if err := yaml.Unmarshal(data, &doctors); err != nil {
		return nil, fmt.Errorf("directory: parse dataset: %w", err)
	}
	return doctors, nil
}

// Load reads the dataset at path, or the embedded dataset when path is empty.
// A dataset that cannot be read or parsed yields an empty directory.
func Load(path string, logger *logging.Logger) *Directory {
	if logger == nil {
		logger = logging.Default()
	}
	data := defaultDataset
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Error("failed to read doctor dataset", "path", path, "error", err)
			return New(nil)
		}
		data = raw
	}
	doctors, err := Parse(data)
	if err != nil {
		logger.Error("failed to load doctor dataset", "path", path, "error", err)
		return New(nil)
	}
	dir := New(doctors)
	logger.Info("doctor directory loaded", "doctors", dir.Len())
	return dir
}

// List returns a copy of all doctors in dataset order.
func (d *Directory) List() []Doctor {
	out := make([]Doctor, len(d.doctors))
	for i, doc := range d.doctors {
		doc.Slots = append([]string(nil), doc.Slots...)
		out[i] = doc
	}
	return out
}

// Len returns the number of doctors.
func (d *Directory) Len() int {
	return len(d.doctors)
}

// Find looks a doctor up by id.
func (d *Directory) Find(id string) (Doctor, error) {
	idx, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return Doctor{}, fmt.Errorf("%w: %s", ErrDoctorNotFound, id)
	}
	doc := d.doctors[idx]
	doc.Slots = append([]string(nil), doc.Slots...)
	return doc, nil
}

// Match finds the first doctor whose surname or id appears in the utterance.
func (d *Directory) Match(utterance string) (Doctor, bool) {
	text := strings.ToLower(utterance)
	for _, doc := range d.doctors {
		surname := doc.Surname()
		if (surname != "" && strings.Contains(text, surname)) || strings.Contains(text, strings.ToLower(doc.ID)) {
			found, err := d.Find(doc.ID)
			return found, err == nil
		}
	}
	return Doctor{}, false
}

// Names returns the doctors' display names in order.
func (d *Directory) Names() []string {
	names := make([]string, len(d.doctors))
	for i, doc := range d.doctors {
		names[i] = doc.Name
	}
	return names
}
