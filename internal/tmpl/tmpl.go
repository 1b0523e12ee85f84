// Package tmpl renders monitor argv/description templates and caches the
// expansion per monitor id, invalidating on explicit flush (spec.md §4.4).
//
// Its caching structure — a map keyed by id guarded by a mutex, with a
// Flush/FlushAll pair — is grounded on the LRU TemplateCache in
// other_examples' ipiton-alert-history-service notification template
// engine. Its grammar is NOT grounded on that file: spec.md §9 explicitly
// rejects a general-purpose engine like text/template in favor of a
// minimal {{var}} substitution plus {% if %}/{% else %}/{% endif %}
// conditional renderer, which is hand-written here.
package tmpl

import (
	"strings"
	"sync"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/irisett-go/irisett/internal/errs"
)

// Expansion is the fully-rendered, shell-split form of one monitor
// instance's definition: ready-to-exec argv plus a human description.
type Expansion struct {
	Argv        []string
	Description string
}

// Cache stores Expansion by monitor instance id.
type Cache struct {
	mu    sync.RWMutex
	byID  map[int64]Expansion
}

func NewCache() *Cache {
	return &Cache{byID: make(map[int64]Expansion)}
}

// Get returns the cached expansion for id, if present.
func (c *Cache) Get(id int64) (Expansion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	return e, ok
}

// Put installs the expansion for id, overwriting any previous entry.
func (c *Cache) Put(id int64, e Expansion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = e
}

// Flush removes the cached expansion for id, forcing the next lookup to
// re-render. Called whenever a monitor instance's arguments, or its
// definition's templates, change.
func (c *Cache) Flush(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

// FlushAll clears every cached expansion, called when a definition's
// argv/description template text itself changes.
func (c *Cache) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[int64]Expansion)
}

// Render expands argvTemplate and descriptionTemplate against args and
// shell-splits the argv result. It does not touch the cache — callers
// look up or populate the Cache around it.
func Render(argvTemplate, descriptionTemplate string, args map[string]string) (Expansion, error) {
	argvText := expand(argvTemplate, args)
	argv, err := shellquote.Split(argvText)
	if err != nil {
		return Expansion{}, errs.Wrap(errs.KindInvalidArguments, "failed to split argv template", err)
	}
	if len(argv) == 0 {
		return Expansion{}, errs.New(errs.KindInvalidArguments, "argv template expanded to nothing")
	}
	return Expansion{
		Argv:        argv,
		Description: expand(descriptionTemplate, args),
	}, nil
}

// expand performs {{var}} substitution and {% if var %}...{% else
// %}...{% endif %} conditional evaluation. A conditional is "true" when
// its variable is present in args and non-empty. Conditionals do not
// nest — irisett's templates never needed it, and the grammar stays
// intentionally minimal per spec.md §9.
func expand(text string, args map[string]string) string {
	text = expandConditionals(text, args)
	return expandVars(text, args)
}

func expandVars(text string, args map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			b.WriteString(text)
			break
		}
		end := strings.Index(text[start:], "}}")
		if end < 0 {
			b.WriteString(text)
			break
		}
		end += start
		b.WriteString(text[:start])
		name := strings.TrimSpace(text[start+2 : end])
		b.WriteString(args[name])
		text = text[end+2:]
	}
	return b.String()
}

func expandConditionals(text string, args map[string]string) string {
	for {
		start := strings.Index(text, "{% if ")
		if start < 0 {
			return text
		}
		condEnd := strings.Index(text[start:], "%}")
		if condEnd < 0 {
			return text
		}
		condEnd += start
		varName := strings.TrimSpace(text[start+len("{% if ") : condEnd])
		varName = strings.TrimSuffix(varName, "%}")
		varName = strings.TrimSpace(varName)

		endIfIdx := strings.Index(text[condEnd:], "{% endif %}")
		if endIfIdx < 0 {
			return text
		}
		endIfIdx += condEnd
		body := text[condEnd+len("%}") : endIfIdx]

		var chosen string
		if elseIdx := strings.Index(body, "{% else %}"); elseIdx >= 0 {
			thenBody, elseBody := body[:elseIdx], body[elseIdx+len("{% else %}"):]
			if args[varName] != "" {
				chosen = thenBody
			} else {
				chosen = elseBody
			}
		} else if args[varName] != "" {
			chosen = body
		}

		text = text[:start] + chosen + text[endIfIdx+len("{% endif %}"):]
	}
}
