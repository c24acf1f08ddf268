package names

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	fingerBits = 20
	fingerMask = 1<<fingerBits - 1
	prefixBits = 10
	prefixMask = 1<<prefixBits - 1

	MaxNames    = fingerMask
	MaxPrefixes = prefixMask
)

var (
	ErrExhausted = errors.New("name pool exhausted")
	ErrUnknown   = errors.New("name not allocated")
)

const (
	XmlNamespace   = "http://www.w3.org/XML/1998/namespace"
	XmlnsNamespace = "http://www.w3.org/2000/xmlns/"
	XslNamespace   = "http://www.w3.org/1999/XSL/Transform"
)

// Fingerprint identifies a (uri, local) pair. Two names with the same
// fingerprint are the same name whatever prefix they were written with.
type Fingerprint uint32

// Code identifies a (prefix, uri, local) triple. The low bits hold the
// fingerprint, the rest the prefix.
type Code uint32

func (c Code) Fingerprint() Fingerprint {
	return Fingerprint(uint32(c) & fingerMask)
}

func (c Code) prefixIndex() int {
	return int(uint32(c)>>fingerBits) & prefixMask
}

// Fingerprints allocated by every pool at construction, in this order.
const (
	None Fingerprint = iota
	XmlSpace
	XmlLang
	XmlBase
)

type name struct {
	uri   string
	local string
}

type Pool struct {
	mu       sync.RWMutex
	names    []name
	index    map[name]Fingerprint
	prefixes []string
	known    map[string]int

	docs atomic.Uint64
}

func NewPool() *Pool {
	p := Pool{
		index: make(map[name]Fingerprint),
		known: make(map[string]int),
	}
	p.mustAllocate("", "", "")
	p.mustAllocate("xml", XmlNamespace, "space")
	p.mustAllocate("xml", XmlNamespace, "lang")
	p.mustAllocate("xml", XmlNamespace, "base")
	return &p
}

func (p *Pool) mustAllocate(prefix, uri, local string) Code {
	code, err := p.Allocate(prefix, uri, local)
	if err != nil {
		panic(err)
	}
	return code
}

// Allocate interns the given name and returns its code. Allocating the
// same (uri, local) pair always yields the same fingerprint; the prefix
// only affects the upper bits of the code. Codes are never reassigned.
func (p *Pool) Allocate(prefix, uri, local string) (Code, error) {
	key := name{uri: uri, local: local}

	p.mu.RLock()
	fp, okName := p.index[key]
	px, okPrefix := p.known[prefix]
	p.mu.RUnlock()
	if okName && okPrefix {
		return makeCode(px, fp), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fp, okName = p.index[key]
	if !okName {
		if len(p.names) > MaxNames {
			return 0, fmt.Errorf("%w: %d names", ErrExhausted, len(p.names))
		}
		fp = Fingerprint(len(p.names))
		p.names = append(p.names, key)
		p.index[key] = fp
	}
	px, okPrefix = p.known[prefix]
	if !okPrefix {
		if len(p.prefixes) > MaxPrefixes {
			return 0, fmt.Errorf("%w: %d prefixes", ErrExhausted, len(p.prefixes))
		}
		px = len(p.prefixes)
		p.prefixes = append(p.prefixes, prefix)
		p.known[prefix] = px
	}
	return makeCode(px, fp), nil
}

// Fingerprint returns the fingerprint for (uri, local) if it has been
// allocated.
func (p *Pool) Fingerprint(uri, local string) (Fingerprint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fp, ok := p.index[name{uri: uri, local: local}]
	return fp, ok
}

func (p *Pool) URI(fp Fingerprint) (string, error) {
	n, err := p.lookup(fp)
	if err != nil {
		return "", err
	}
	return n.uri, nil
}

func (p *Pool) LocalName(fp Fingerprint) (string, error) {
	n, err := p.lookup(fp)
	if err != nil {
		return "", err
	}
	return n.local, nil
}

// Expanded returns the name in {uri}local form.
func (p *Pool) Expanded(fp Fingerprint) (string, error) {
	n, err := p.lookup(fp)
	if err != nil {
		return "", err
	}
	if n.uri == "" {
		return n.local, nil
	}
	return fmt.Sprintf("{%s}%s", n.uri, n.local), nil
}

func (p *Pool) Prefix(c Code) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ix := c.prefixIndex()
	if ix >= len(p.prefixes) {
		return "", fmt.Errorf("%w: code %d", ErrUnknown, c)
	}
	return p.prefixes[ix], nil
}

// DisplayName returns the name as written: prefix:local, or just the
// local part when the prefix is empty.
func (p *Pool) DisplayName(c Code) (string, error) {
	prefix, err := p.Prefix(c)
	if err != nil {
		return "", err
	}
	local, err := p.LocalName(c.Fingerprint())
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return local, nil
	}
	return prefix + ":" + local, nil
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.names)
}

// NextDocument returns a document number never returned before by this
// pool.
func (p *Pool) NextDocument() uint64 {
	return p.docs.Add(1)
}

func (p *Pool) lookup(fp Fingerprint) (name, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(fp) >= len(p.names) {
		return name{}, fmt.Errorf("%w: fingerprint %d", ErrUnknown, fp)
	}
	return p.names[fp], nil
}

func makeCode(prefix int, fp Fingerprint) Code {
	return Code(uint32(prefix)<<fingerBits | uint32(fp))
}

// Snapshot captures the full content of the pool so that a compiled
// program can be reloaded against an identical pool.
type Snapshot struct {
	URIs     []string
	Locals   []string
	Prefixes []string
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := Snapshot{
		URIs:     make([]string, len(p.names)),
		Locals:   make([]string, len(p.names)),
		Prefixes: make([]string, len(p.prefixes)),
	}
	for i, n := range p.names {
		s.URIs[i] = n.uri
		s.Locals[i] = n.local
	}
	copy(s.Prefixes, p.prefixes)
	return s
}

// Restore replaces the content of the pool with the snapshot. Codes
// held against the previous content become meaningless; restore into a
// fresh pool.
func (p *Pool) Restore(s Snapshot) error {
	if len(s.URIs) != len(s.Locals) {
		return fmt.Errorf("invalid snapshot: %d uris, %d locals", len(s.URIs), len(s.Locals))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = p.names[:0]
	p.index = make(map[name]Fingerprint, len(s.URIs))
	for i := range s.URIs {
		n := name{uri: s.URIs[i], local: s.Locals[i]}
		p.names = append(p.names, n)
		p.index[n] = Fingerprint(i)
	}
	p.prefixes = p.prefixes[:0]
	p.known = make(map[string]int, len(s.Prefixes))
	for i, str := range s.Prefixes {
		p.prefixes = append(p.prefixes, str)
		p.known[str] = i
	}
	return nil
}
