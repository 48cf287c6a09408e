// # internal/engine/javastub/pool.go
package javastub

import (
	"sync"
	"sync/atomic"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

var javaLanguage = sync.OnceValue(func() *sitter.Language {
	return sitter.NewLanguage(tree_sitter_java.Language())
})

// parserPool recycles Java parsers between files. Safe for concurrent use.
type parserPool struct {
	lang   *sitter.Language
	pool   sync.Pool
	leased atomic.Int64
}

func newParserPool(lang *sitter.Language) *parserPool {
	p := &parserPool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			_ = sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

func (p *parserPool) get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// Reset() may have cleared the language.
	_ = sp.SetLanguage(p.lang)
	p.leased.Add(1)
	return sp
}

// put resets sp so no previous tree stays reachable. sp must not be used afterwards.
func (p *parserPool) put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leased.Add(-1)
	sp.Reset()
	p.pool.Put(sp)
}

// active returns the number of parsers currently leased.
func (p *parserPool) active() int {
	return int(p.leased.Load())
}
