package templates

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// IndexFile is the name of the index kept next to the templates.
const IndexFile = "index"

// indexHeader is the first line of the index, in ntc-templates layout.
const indexHeader = "Template, Hostname, Platform, Command"

// TemplateExt is the file extension of template files.
const TemplateExt = ".textfsm"

// Dir is a Manager that stores templates as files in a directory, with an
// index mapping each file to its platform (driver) and command.
//
// Library, when set, is consulted by AddTemplate for templates requested
// by key without inline text.
type Dir struct {
	Root    string
	Library string

	mu sync.Mutex
}

// NewDir creates the template directory if needed and returns a Manager.
func NewDir(root, library string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create template dir: %w", err)
	}
	return &Dir{Root: root, Library: library}, nil
}

// indexRow is one line of the index.
type indexRow struct {
	Template string
	Hostname string
	Platform string
	Command  string
}

// check rejects values that would break the one-line, comma-separated row.
// Command is the last field, so commas are allowed there.
func (r indexRow) check() error {
	for _, f := range []struct{ name, value, bad string }{
		{"template", r.Template, ",\r\n"},
		{"hostname", r.Hostname, ",\r\n"},
		{"driver", r.Platform, ",\r\n"},
		{"command", r.Command, "\r\n"},
	} {
		if strings.ContainsAny(f.value, f.bad) {
			return fmt.Errorf("%s %q contains a character not allowed in the index", f.name, f.value)
		}
	}
	return nil
}

// TemplateName returns the file name used for (driver, command).
func TemplateName(driver, command string) string {
	name := strings.ToLower(driver + "_" + strings.Join(strings.Fields(command), "_"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	return name + TemplateExt
}

func (d *Dir) AddTemplate(ctx context.Context, key, driver, command, templateText string) Result {
	if driver == "" || command == "" {
		return Errorf("driver and command are required")
	}
	row := indexRow{Template: TemplateName(driver, command), Hostname: ".*", Platform: driver, Command: command}
	if err := row.check(); err != nil {
		return Errorf("add template %q: %v", key, err)
	}
	text := templateText
	if text == "" {
		var err error
		text, err = d.fromLibrary(key)
		if err != nil {
			return Errorf("add template %q: %v", key, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeTemplate(row.Template, text); err != nil {
		return Errorf("add template %q: %v", key, err)
	}
	if err := d.upsertIndex(row); err != nil {
		return Errorf("add template %q: %v", key, err)
	}
	return OK(fmt.Sprintf("added template %s", row.Template))
}

func (d *Dir) PushTemplate(ctx context.Context, driver, command, templateText string) Result {
	if driver == "" || command == "" {
		return Errorf("driver and command are required")
	}
	if templateText == "" {
		return Errorf("template text is required")
	}
	row := indexRow{Template: TemplateName(driver, command), Hostname: ".*", Platform: driver, Command: command}
	if err := row.check(); err != nil {
		return Errorf("push template %s: %v", row.Template, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeTemplate(row.Template, templateText); err != nil {
		return Errorf("push template %s: %v", row.Template, err)
	}
	if err := d.upsertIndex(row); err != nil {
		return Errorf("push template %s: %v", row.Template, err)
	}
	return OK(fmt.Sprintf("pushed template %s", row.Template))
}

func (d *Dir) RemoveTemplate(ctx context.Context, template string) Result {
	if template == "" || template != filepath.Base(template) || strings.HasPrefix(template, ".") {
		return Errorf("invalid template name %q", template)
	}
	if !strings.HasSuffix(template, TemplateExt) {
		template += TemplateExt
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.readIndex()
	if err != nil {
		return Errorf("remove template %s: %v", template, err)
	}
	kept := rows[:0]
	found := false
	for _, r := range rows {
		if r.Template == template {
			found = true
			continue
		}
		kept = append(kept, r)
	}

	err = os.Remove(filepath.Join(d.Root, template))
	if errors.Is(err, fs.ErrNotExist) && !found {
		return Errorf("template %s not found", template)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Errorf("remove template %s: %v", template, err)
	}
	if err := d.writeIndex(kept); err != nil {
		return Errorf("remove template %s: %v", template, err)
	}
	return OK(fmt.Sprintf("removed template %s", template))
}

// ListTemplates returns map[driver][]command, commands sorted.
func (d *Dir) ListTemplates(ctx context.Context) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.readIndex()
	if err != nil {
		return Errorf("list templates: %v", err)
	}
	out := map[string][]string{}
	for _, r := range rows {
		out[r.Platform] = append(out[r.Platform], r.Command)
	}
	for _, cmds := range out {
		sort.Strings(cmds)
	}
	return OK(out)
}

func (d *Dir) fromLibrary(key string) (string, error) {
	if d.Library == "" {
		return "", errors.New("no template text supplied and no template library configured")
	}
	if key == "" || key != filepath.Base(key) {
		return "", fmt.Errorf("invalid template key %q", key)
	}
	for _, name := range []string{key, key + TemplateExt} {
		b, err := os.ReadFile(filepath.Join(d.Library, name))
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("template %q not found in library", key)
}

func (d *Dir) writeTemplate(name, text string) error {
	return writeFileAtomic(filepath.Join(d.Root, name), []byte(text))
}

func (d *Dir) upsertIndex(row indexRow) error {
	rows, err := d.readIndex()
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range rows {
		if r.Template == row.Template {
			rows[i] = row
			replaced = true
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	return d.writeIndex(rows)
}

func (d *Dir) readIndex() ([]indexRow, error) {
	f, err := os.Open(filepath.Join(d.Root, IndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var rows []indexRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line == indexHeader || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed index line %q", line)
		}
		rows = append(rows, indexRow{
			Template: strings.TrimSpace(parts[0]),
			Hostname: strings.TrimSpace(parts[1]),
			Platform: strings.TrimSpace(parts[2]),
			Command:  strings.TrimSpace(parts[3]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return rows, nil
}

// writeIndex writes rows sorted by platform then template. A row that
// cannot be written as a single line fails the whole write.
func (d *Dir) writeIndex(rows []indexRow) error {
	for _, r := range rows {
		if err := r.check(); err != nil {
			return err
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Platform != rows[j].Platform {
			return rows[i].Platform < rows[j].Platform
		}
		return rows[i].Template < rows[j].Template
	})
	var b strings.Builder
	b.WriteString(indexHeader)
	b.WriteString("\n\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s, %s, %s, %s\n", r.Template, r.Hostname, r.Platform, r.Command)
	}
	return writeFileAtomic(filepath.Join(d.Root, IndexFile), []byte(b.String()))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
