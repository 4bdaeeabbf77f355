package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"

	"viammo.app/tripscan/internal/model"
)

// EMLGateway serves a directory of RFC 822 files. Message ids are file names
// relative to the directory. It is used for offline scans and tests.
type EMLGateway struct {
	dir string
}

func NewEMLGateway(dir string) (*EMLGateway, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open mail directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &EMLGateway{dir: dir}, nil
}

// Search matches the OR-ed phrases of query against subject and body,
// case-insensitively. An empty query matches every message.
func (g *EMLGateway) Search(ctx context.Context, query string, maxResults int) ([]model.MessageRef, error) {
	names, err := g.list()
	if err != nil {
		return nil, err
	}

	phrases := ParseQuery(query)
	var refs []model.MessageRef
	for _, name := range names {
		if len(refs) >= maxResults {
			break
		}
		if err := ctx.Err(); err != nil {
			return refs, err
		}

		if len(phrases) > 0 {
			rec, err := g.read(name, true)
			if err != nil {
				continue
			}
			if !matchesAny(rec.Subject+" "+rec.Body, phrases) {
				continue
			}
		}
		refs = append(refs, model.MessageRef(name))
	}
	return refs, nil
}

func (g *EMLGateway) FetchMetadata(_ context.Context, id model.MessageRef) (*model.EmailRecord, error) {
	return g.read(string(id), false)
}

func (g *EMLGateway) FetchFull(_ context.Context, id model.MessageRef) (*model.EmailRecord, error) {
	return g.read(string(id), true)
}

func (g *EMLGateway) list() ([]string, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("read mail directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (g *EMLGateway) read(name string, withBody bool) (*model.EmailRecord, error) {
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("read message %s: %w", name, ErrMessageNotFound)
	}
	raw, err := os.ReadFile(filepath.Join(g.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read message %s: %w", name, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("read message %s: %w", name, err)
	}
	return ParseEML(name, raw, withBody)
}

// ParseEML parses one RFC 822 message into a record.
func ParseEML(id string, raw []byte, withBody bool) (*model.EmailRecord, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}

	rec := recordFromHeaders(id, func(name string) string {
		v, err := entity.Header.Text(name)
		if err != nil {
			return entity.Header.Get(name)
		}
		return v
	})
	if !withBody {
		return rec, nil
	}

	root, err := entityPart(entity)
	if err != nil {
		return nil, fmt.Errorf("parse message %s body: %w", id, err)
	}
	rec.Body = bodyText(root)
	return rec, nil
}

func entityPart(e *message.Entity) (*Part, error) {
	mediaType, _, _ := e.Header.ContentType()
	if mediaType == "" {
		mediaType = "text/plain"
	}
	part := &Part{MimeType: strings.ToLower(mediaType)}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return part, err
			}
			cp, err := entityPart(child)
			if err != nil {
				return part, err
			}
			part.Children = append(part.Children, cp)
		}
		return part, nil
	}

	if strings.HasPrefix(part.MimeType, "text/") {
		data, err := io.ReadAll(e.Body)
		if err != nil {
			return part, err
		}
		part.Data = data
	}
	return part, nil
}

func matchesAny(text string, phrases []string) bool {
	text = strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
