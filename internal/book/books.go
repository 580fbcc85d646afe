package book

import (
	"slices"

	"lobsim/internal/schema"

	"github.com/yanun0323/errors"
)

// Books is the symbol-keyed arena of order books.
type Books struct {
	opts    Options
	books   map[schema.Symbol]*Book
	symbols []schema.Symbol
}

// NewBooks creates an arena with one empty book per symbol.
func NewBooks(opts Options, symbols ...schema.Symbol) *Books {
	bs := &Books{
		opts:  opts,
		books: make(map[schema.Symbol]*Book, len(symbols)),
	}
	for _, sym := range symbols {
		bs.Ensure(sym)
	}
	return bs
}

// Ensure returns the book for symbol, creating it when absent.
func (bs *Books) Ensure(symbol schema.Symbol) *Book {
	if b, ok := bs.books[symbol]; ok {
		return b
	}
	b := New(symbol, bs.opts)
	bs.books[symbol] = b
	idx, _ := slices.BinarySearch(bs.symbols, symbol)
	bs.symbols = slices.Insert(bs.symbols, idx, symbol)
	return b
}

// Get returns the book for symbol.
func (bs *Books) Get(symbol schema.Symbol) (*Book, bool) {
	b, ok := bs.books[symbol]
	return b, ok
}

// Apply routes a market event to its symbol's book.
func (bs *Books) Apply(ev schema.MarketEvent) (BookChange, error) {
	if ev.Symbol == "" {
		return BookChange{}, errors.Wrap(ErrInvalidEvent, "empty symbol")
	}
	return bs.Ensure(ev.Symbol).Apply(ev)
}

// Top returns the top of book for symbol.
func (bs *Books) Top(symbol schema.Symbol) (Top, bool) {
	b, ok := bs.books[symbol]
	if !ok {
		return Top{Symbol: symbol}, false
	}
	return b.Top(), true
}

// Symbols returns the known symbols in ascending order.
func (bs *Books) Symbols() []schema.Symbol {
	return slices.Clone(bs.symbols)
}

// Len returns the number of books.
func (bs *Books) Len() int {
	return len(bs.books)
}

// AppendDigest appends every book's canonical encoding in symbol order.
func (bs *Books) AppendDigest(buf []byte) []byte {
	for _, sym := range bs.symbols {
		buf = bs.books[sym].AppendDigest(buf)
	}
	return buf
}
