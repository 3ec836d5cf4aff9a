package editor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// emptyCMS is written when the document has no cms object yet
const emptyCMS = `{"homepage":{},"team":[],"services":[],"caseStudies":[],"contact":{}}`

var (
	ErrUnknownSection = errors.New("unknown section")
	ErrUnknownField   = errors.New("unknown field")
	ErrItemRange      = errors.New("item index out of range")
)

// Field is one form input of a section
type Field struct {
	Key       string
	Label     string
	Multiline bool
	// Lines fields hold an array of strings, edited one entry per line
	Lines bool
}

// Section is an editable part of the cms object. List sections hold an
// array of items, the others a single object.
type Section struct {
	Key    string
	Title  string
	List   bool
	Fields []Field
}

var Sections = []Section{
	{Key: "team", Title: "Team", List: true, Fields: []Field{
		{Key: "name", Label: "Name"},
		{Key: "role", Label: "Role"},
		{Key: "bio", Label: "Bio", Multiline: true},
		{Key: "image", Label: "Image URL"},
	}},
	{Key: "services", Title: "Services", List: true, Fields: []Field{
		{Key: "title", Label: "Title"},
		{Key: "category", Label: "Category"},
		{Key: "description", Label: "Description", Multiline: true},
	}},
	{Key: "caseStudies", Title: "Case studies", List: true, Fields: []Field{
		{Key: "title", Label: "Title"},
		{Key: "client", Label: "Client"},
		{Key: "category", Label: "Category"},
		{Key: "url", Label: "Project URL"},
	}},
	{Key: "contact", Title: "Contact", Fields: []Field{
		{Key: "phone", Label: "Phone"},
		{Key: "email", Label: "Email"},
		{Key: "locations", Label: "Locations", Multiline: true, Lines: true},
	}},
}

// FindSection looks a section up by key
func FindSection(key string) (Section, error) {
	for _, section := range Sections {
		if section.Key == key {
			return section, nil
		}
	}
	return Section{}, fmt.Errorf("%w: %q", ErrUnknownSection, key)
}

func (sec Section) field(key string) (Field, error) {
	for _, f := range sec.Fields {
		if f.Key == key {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("%w: %s.%q", ErrUnknownField, sec.Key, key)
}

// Items returns the field values of a section. Object sections yield a single item.
func Items(doc, key string) ([]map[string]string, error) {
	sec, err := FindSection(key)
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(doc) {
		return nil, errors.New(MsgInvalidJSON)
	}

	value := gjson.Get(doc, "cms."+sec.Key)
	if !sec.List {
		return []map[string]string{sec.values(value)}, nil
	}
	items := []map[string]string{}
	for _, item := range value.Array() {
		items = append(items, sec.values(item))
	}
	return items, nil
}

func (sec Section) values(item gjson.Result) map[string]string {
	values := make(map[string]string, len(sec.Fields))
	for _, f := range sec.Fields {
		v := item.Get(f.Key)
		if f.Lines {
			var lines []string
			for _, line := range v.Array() {
				lines = append(lines, line.String())
			}
			values[f.Key] = strings.Join(lines, "\n")
			continue
		}
		values[f.Key] = v.String()
	}
	return values
}

// EnsureCMS adds an empty cms object when the document has none
func EnsureCMS(doc string) (string, error) {
	if !gjson.Valid(doc) {
		return "", errors.New(MsgInvalidJSON)
	}
	cms := gjson.Get(doc, "cms")
	if cms.Exists() && cms.IsObject() {
		return doc, nil
	}
	out, err := sjson.SetRaw(doc, "cms", emptyCMS)
	if err != nil {
		return "", err
	}
	return reindent(out)
}

// AddItem appends an empty item to a list section
func AddItem(doc, key string) (string, error) {
	sec, err := FindSection(key)
	if err != nil {
		return "", err
	}
	if !sec.List {
		return "", fmt.Errorf("%s is not a list", sec.Key)
	}
	doc, err = EnsureCMS(doc)
	if err != nil {
		return "", err
	}

	item := make(map[string]string, len(sec.Fields))
	for _, f := range sec.Fields {
		if !f.Lines {
			item[f.Key] = ""
		}
	}
	path := "cms." + sec.Key
	if !gjson.Get(doc, path).IsArray() {
		if doc, err = sjson.SetRaw(doc, path, "[]"); err != nil {
			return "", err
		}
	}
	out, err := sjson.Set(doc, path+".-1", item)
	if err != nil {
		return "", err
	}
	return reindent(out)
}

// RemoveItem deletes item index of a list section
func RemoveItem(doc, key string, index int) (string, error) {
	sec, err := FindSection(key)
	if err != nil {
		return "", err
	}
	if err := checkIndex(doc, sec, index); err != nil {
		return "", err
	}
	out, err := sjson.Delete(doc, fmt.Sprintf("cms.%s.%d", sec.Key, index))
	if err != nil {
		return "", err
	}
	return reindent(out)
}

// SetField writes one field. index is ignored for object sections.
func SetField(doc, key string, index int, fieldKey, value string) (string, error) {
	sec, err := FindSection(key)
	if err != nil {
		return "", err
	}
	f, err := sec.field(fieldKey)
	if err != nil {
		return "", err
	}
	doc, err = EnsureCMS(doc)
	if err != nil {
		return "", err
	}

	path := "cms." + sec.Key
	if sec.List {
		if err := checkIndex(doc, sec, index); err != nil {
			return "", err
		}
		path += "." + strconv.Itoa(index)
	} else if !gjson.Get(doc, path).IsObject() {
		if doc, err = sjson.SetRaw(doc, path, "{}"); err != nil {
			return "", err
		}
	}
	path += "." + f.Key

	var out string
	if f.Lines {
		lines := []string{}
		for _, line := range strings.Split(value, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
		}
		out, err = sjson.Set(doc, path, lines)
	} else {
		out, err = sjson.Set(doc, path, value)
	}
	if err != nil {
		return "", err
	}
	return reindent(out)
}

func checkIndex(doc string, sec Section, index int) error {
	if !sec.List {
		return fmt.Errorf("%s is not a list", sec.Key)
	}
	if !gjson.Valid(doc) {
		return errors.New(MsgInvalidJSON)
	}
	count := len(gjson.Get(doc, "cms."+sec.Key).Array())
	if index < 0 || index >= count {
		return fmt.Errorf("%w: %s has %d items, got %d", ErrItemRange, sec.Key, count, index)
	}
	return nil
}

// reindent formats doc the way Load does, keeping key order
func reindent(doc string) (string, error) {
	var compact, pretty bytes.Buffer
	if err := json.Compact(&compact, []byte(doc)); err != nil {
		return "", err
	}
	if err := json.Indent(&pretty, compact.Bytes(), "", "  "); err != nil {
		return "", err
	}
	return pretty.String(), nil
}

// EditSection applies change to the buffer. The buffer must hold valid JSON.
func (s *Session) EditSection(change func(doc string) (string, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}
	if s.saving {
		return ErrSaveInFlight
	}
	if s.validationErr != "" {
		return errors.New(s.validationErr)
	}

	doc, err := change(s.buffer)
	if err != nil {
		return err
	}
	s.buffer = doc
	s.validationErr = ValidationMessage(doc)
	s.state = StateEditing
	return nil
}
