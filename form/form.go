// Package form models the multi-section submission form: one primary section
// per category, repeatable sections for barcode, nutrition and ingredients
// images, and the bookkeeping that ties background uploads back to sections.
package form

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

var (
	ErrNotRepeatable   = errors.New("category does not accept additional sections")
	ErrPrimarySection  = errors.New("primary sections cannot be removed")
	ErrUnknownSection  = errors.New("unknown section")
	ErrUnknownCategory = errors.New("unknown category")
)

// IndexPlaceholder is substituted with the section counter when a template is cloned.
const IndexPlaceholder = "{index}"

// Template returns the section id template of a repeatable category, e.g. "barcode-{index}".
func Template(c types.Category) string {
	return c.FormPrefix() + "-" + IndexPlaceholder
}

// Section is one upload slot of the form.
type Section struct {
	ID            string
	Category      types.Category
	Primary       bool
	File          *types.FileInfo
	BarcodeNumber string
	Notes         string

	// TaskID is set while a background upload for the section is queued or in flight.
	TaskID   string
	Uploaded bool
	ImageID  int64
	ImageURL string
	Error    string
}

// Previewable reports whether the attached file gets an image preview.
func (s Section) Previewable() bool {
	return s.File != nil && s.File.IsImage()
}

// Form is the submission form of one product. It is safe for concurrent use.
type Form struct {
	ProductID int64

	mu       sync.Mutex
	input    types.ProductInput
	sections []*Section
	counters map[types.Category]int
}

// New creates a form with the primary section of every category.
func New(productID int64) *Form {
	f := &Form{
		ProductID: productID,
		counters:  make(map[types.Category]int),
	}
	for _, c := range types.Categories {
		f.sections = append(f.sections, &Section{ID: c.FormPrefix(), Category: c, Primary: true})
	}
	return f
}

// SetProduct sets the product fields submitted along with the sections.
func (f *Form) SetProduct(in types.ProductInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = in
}

// Product returns the product fields.
func (f *Form) Product() types.ProductInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// AddSection clones the category template with the next counter value.
func (f *Form) AddSection(c types.Category) (Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.addSection(c)
	if err != nil {
		return Section{}, err
	}
	return *s, nil
}

func (f *Form) addSection(c types.Category) (*Section, error) {
	if !c.Repeatable() {
		return nil, fmt.Errorf("%w: %s", ErrNotRepeatable, c)
	}
	f.counters[c]++
	id := strings.ReplaceAll(Template(c), IndexPlaceholder, strconv.Itoa(f.counters[c]))
	s := &Section{ID: id, Category: c}

	// keep sections of a category together, after the last one
	at := len(f.sections)
	for i, existing := range f.sections {
		if existing.Category == c {
			at = i + 1
		}
	}
	f.sections = slices.Insert(f.sections, at, s)
	tool.DefaultLogger.Debugf("[Form] Added section %s", id)
	return s, nil
}

// RemoveSection removes an additional section.
func (f *Form) RemoveSection(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSection, id)
	}
	if f.sections[i].Primary {
		return fmt.Errorf("%w: %s", ErrPrimarySection, id)
	}
	f.sections = slices.Delete(f.sections, i, i+1)
	return nil
}

func (f *Form) index(id string) int {
	return slices.IndexFunc(f.sections, func(s *Section) bool { return s.ID == id })
}

// Section returns a copy of the section with the given id.
func (f *Form) Section(id string) (Section, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(id); i >= 0 {
		return *f.sections[i], true
	}
	return Section{}, false
}

// Sections returns copies of every section in form order.
func (f *Form) Sections() []Section {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Section, 0, len(f.sections))
	for _, s := range f.sections {
		out = append(out, *s)
	}
	return out
}

// SetMetadata sets the barcode number and notes of a section.
func (f *Form) SetMetadata(id, barcodeNumber, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSection, id)
	}
	f.sections[i].BarcodeNumber = strings.TrimSpace(barcodeNumber)
	f.sections[i].Notes = notes
	return nil
}

// Attach puts a file on a specific section, replacing any earlier file and upload state.
func (f *Form) Attach(id string, file types.FileInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSection, id)
	}
	attach(f.sections[i], file)
	return nil
}

func attach(s *Section, file types.FileInfo) {
	s.File = &file
	s.TaskID = ""
	s.Uploaded = false
	s.ImageID = 0
	s.ImageURL = ""
	s.Error = ""
}

// Assign picks the destination section for a dropped file: the first empty
// section of a repeatable category (adding one when all are full), or the
// single section of a package view, whose file is replaced.
func (f *Form) Assign(c types.Category, file types.FileInfo) (Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !slices.Contains(types.Categories, c) {
		return Section{}, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	var target *Section
	for _, s := range f.sections {
		if s.Category != c {
			continue
		}
		if !c.Repeatable() || s.File == nil {
			target = s
			break
		}
	}
	if target == nil {
		s, err := f.addSection(c)
		if err != nil {
			return Section{}, err
		}
		target = s
	}
	attach(target, file)
	tool.DefaultLogger.Debugf("[Form] %s -> %s", file.FileName, target.ID)
	return *target, nil
}

// Chooser asks for the destination of the first of the remaining files.
// Returning false cancels distribution of every remaining file.
type Chooser func(remaining []types.FileInfo) (types.Category, bool)

// Distribute runs the destination dialog loop: the chosen category receives
// the first remaining file, and the rest are offered again.
func (f *Form) Distribute(files []types.FileInfo, choose Chooser) ([]Section, error) {
	var assigned []Section
	remaining := files
	for len(remaining) > 0 {
		c, ok := choose(remaining)
		if !ok {
			tool.DefaultLogger.Infof("[Form] Destination selection cancelled, %d file(s) left unassigned", len(remaining))
			break
		}
		s, err := f.Assign(c, remaining[0])
		if err != nil {
			return assigned, err
		}
		assigned = append(assigned, s)
		remaining = remaining[1:]
	}
	return assigned, nil
}

// Tasks returns an upload task for every section holding a file that is
// neither uploaded nor already queued, and marks those sections queued.
func (f *Form) Tasks() []types.UploadTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tasks []types.UploadTask
	for _, s := range f.sections {
		if s.File == nil || s.Uploaded || s.TaskID != "" {
			continue
		}
		task := types.UploadTask{
			ID:        tool.GenerateTaskID(),
			ProductID: f.ProductID,
			File:      *s.File,
			Category:  s.Category,
			SectionID: s.ID,
			Metadata:  map[string]string{},
		}
		if s.Category == types.CategoryBarcode && s.BarcodeNumber != "" {
			task.Metadata["barcode_number"] = s.BarcodeNumber
		}
		if s.Notes != "" {
			task.Metadata["notes"] = s.Notes
		}
		s.TaskID = task.ID
		s.Error = ""
		tasks = append(tasks, task)
	}
	return tasks
}

// Track points a section at a replacement task, as produced by a retry.
func (f *Form) Track(task types.UploadTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(task.SectionID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSection, task.SectionID)
	}
	f.sections[i].TaskID = task.ID
	f.sections[i].Error = ""
	return nil
}

// Apply records the outcome of a background upload on its section. Results of
// tasks the section no longer tracks are ignored.
func (f *Form) Apply(result types.UploadResult) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.index(result.Task.SectionID)
	if i < 0 || f.sections[i].TaskID != result.Task.ID {
		return false
	}
	s := f.sections[i]
	s.TaskID = ""
	if result.Success {
		s.Uploaded = true
		s.ImageID = result.ImageID
		s.ImageURL = result.ImageURL
		s.Error = ""
	} else {
		s.Error = result.Error
	}
	return true
}

// Busy reports whether any section waits on a background upload.
func (f *Form) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.ContainsFunc(f.sections, func(s *Section) bool { return s.TaskID != "" })
}

// Values renders the form payload: product fields, per-section metadata and
// the hidden <section>-already_uploaded fields of uploaded sections.
func (f *Form) Values() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := url.Values{}
	v.Set("product_name", strings.TrimSpace(f.input.ProductName))
	setCheckbox(v, "is_variety_pack", f.input.IsVarietyPack)
	setCheckbox(v, "is_offline", f.input.IsOffline)
	setCheckbox(v, "has_multiple_nutrition_facts", f.input.HasMultipleNutritionFacts)
	setCheckbox(v, "has_multiple_barcodes", f.input.HasMultipleBarcodes)

	for _, s := range f.sections {
		if s.Category == types.CategoryBarcode && s.BarcodeNumber != "" {
			v.Set(s.ID+"-barcode_number", s.BarcodeNumber)
		}
		if s.Notes != "" {
			v.Set(s.ID+"-notes", s.Notes)
		}
		if s.Uploaded {
			v.Set(s.ID+"-already_uploaded", "true")
		}
	}
	return v
}

func setCheckbox(v url.Values, key string, on bool) {
	if on {
		v.Set(key, "on")
	}
}

// Files returns the files that still travel with a plain submission, keyed by field name.
func (f *Form) Files() map[string]types.FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := make(map[string]types.FileInfo)
	for _, s := range f.sections {
		if s.File != nil && !s.Uploaded {
			files[s.ID+"-image"] = *s.File
		}
	}
	return files
}
