package corpus

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"doc-classifier/contract"
	"doc-classifier/domain"
	"doc-classifier/domain/mimetypes"
	"doc-classifier/errors"
)

var _ contract.DocumentSource = (*DirectorySource)(nil)

// PageBreak separates pages in plain-text documents.
const PageBreak = "\f"

// DirectorySource reads "<id>.json" or "<id>.txt" files below a root directory.
type DirectorySource struct {
	root string
	log  *slog.Logger
}

func NewDirectorySource(root string, log *slog.Logger) *DirectorySource {
	return &DirectorySource{root: root, log: log}
}

type fileField struct {
	Name     string      `json:"name"`
	Value    string      `json:"value"`
	Children []fileField `json:"children,omitempty"`
}

type filePage struct {
	Text   string      `json:"text"`
	Fields []fileField `json:"fields,omitempty"`
}

type fileDocument struct {
	Pages  []filePage  `json:"pages"`
	Fields []fileField `json:"fields,omitempty"`
}

func (s *DirectorySource) Document(ctx context.Context, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	path, err := s.locate(id)
	if err != nil {
		return domain.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, errors.NewDataError(err, path, "")
	}
	return decodeDocument(id, path, data)
}

func (s *DirectorySource) locate(id string) (string, error) {
	for _, ext := range []string{".json", ".txt"} {
		path := filepath.Join(s.root, filepath.FromSlash(id)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !stderrors.Is(err, fs.ErrNotExist) {
			return "", errors.NewDataError(err, path, "")
		}
	}
	return "", errors.NewDataError(errors.ErrDocumentNotFound, filepath.Join(s.root, id), "")
}

// IDs lists the document identifiers present under the root, in walk order.
func (s *DirectorySource) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".json" && ext != ".txt" {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, ext))
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	s.log.Debug("Documents listed", "path", s.root, "documents", len(ids))
	return ids, nil
}

// decodeDocument trusts the extension: a ".json" file must parse as a
// document tree, a ".txt" file must sniff as text.
func decodeDocument(id, path string, data []byte) (domain.Document, error) {
	if filepath.Ext(path) == ".json" {
		var file fileDocument
		if err := json.Unmarshal(data, &file); err != nil {
			return domain.Document{}, errors.NewDataError(fmt.Errorf("%w: %v", errors.ErrMalformedInput, err), path, "")
		}
		doc := domain.Document{ID: id, Fields: toFields(file.Fields)}
		for _, p := range file.Pages {
			doc.Pages = append(doc.Pages, domain.Page{Text: p.Text, Fields: toFields(p.Fields)})
		}
		return doc, nil
	}
	if format, detected := mimetypes.Detect(data); format == mimetypes.Unknown {
		return domain.Document{}, errors.NewDataError(fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, detected), path, "")
	}
	doc := domain.Document{ID: id}
	for _, text := range strings.Split(string(data), PageBreak) {
		doc.Pages = append(doc.Pages, domain.Page{Text: text})
	}
	return doc, nil
}

func toFields(in []fileField) []domain.Field {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Field, len(in))
	for i, f := range in {
		out[i] = domain.Field{Name: f.Name, Value: f.Value, Children: toFields(f.Children)}
	}
	return out
}
