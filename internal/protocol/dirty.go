package protocol

// Tracker is implemented by anything that remembers whether it has been
// written since it was last cleaned. Trackers are not safe for concurrent
// use; a message has one owner at a time.
type Tracker interface {
	IsDirty() bool
	Clean()
}

// Dirty is an embeddable composite tracker. It is dirty when it has been
// marked dirty itself or when any tracked child is dirty. The zero value is
// clean and tracks nothing.
type Dirty struct {
	dirty    bool
	children []Tracker
}

// Track adds children whose dirtiness propagates to d.
func (d *Dirty) Track(children ...Tracker) {
	d.children = append(d.children, children...)
}

// MarkDirty flags d itself as written.
func (d *Dirty) MarkDirty() {
	d.dirty = true
}

// IsDirty reports whether d or any of its children has been written.
func (d *Dirty) IsDirty() bool {
	if d.dirty {
		return true
	}
	for _, c := range d.children {
		if c.IsDirty() {
			return true
		}
	}
	return false
}

// Clean resets d and every child. Values are left untouched.
func (d *Dirty) Clean() {
	d.dirty = false
	for _, c := range d.children {
		c.Clean()
	}
}

// Value is a single tracked field.
type Value[T any] struct {
	v     T
	dirty bool
}

// NewValue returns a clean Value holding v.
func NewValue[T any](v T) Value[T] {
	return Value[T]{v: v}
}

func (f *Value[T]) Get() T {
	return f.v
}

// Set replaces the value and marks the field dirty, even when v equals the
// current value.
func (f *Value[T]) Set(v T) {
	f.v = v
	f.dirty = true
}

func (f *Value[T]) IsDirty() bool { return f.dirty }
func (f *Value[T]) Clean()        { f.dirty = false }

// Array is a fixed-length tracked collection.
type Array[T any] struct {
	items []T
	dirty bool
}

// NewArray returns a clean Array of n zero values.
func NewArray[T any](n int) *Array[T] {
	return &Array[T]{items: make([]T, n)}
}

func (a *Array[T]) Len() int {
	return len(a.items)
}

func (a *Array[T]) At(i int) T {
	return a.items[i]
}

func (a *Array[T]) Set(i int, v T) {
	a.items[i] = v
	a.dirty = true
}

// Values returns a copy of the elements.
func (a *Array[T]) Values() []T {
	out := make([]T, len(a.items))
	copy(out, a.items)
	return out
}

func (a *Array[T]) IsDirty() bool { return a.dirty }
func (a *Array[T]) Clean()        { a.dirty = false }

// Grid is a tracked two-dimensional collection addressed as (x, y).
type Grid[T any] struct {
	width, height int
	cells         []T
	dirty         bool
}

// NewGrid returns a clean width x height grid of zero values.
func NewGrid[T any](width, height int) *Grid[T] {
	return &Grid[T]{width: width, height: height, cells: make([]T, width*height)}
}

func (g *Grid[T]) Width() int  { return g.width }
func (g *Grid[T]) Height() int { return g.height }

func (g *Grid[T]) At(x, y int) T {
	return g.cells[x*g.height+y]
}

func (g *Grid[T]) Set(x, y int, v T) {
	g.cells[x*g.height+y] = v
	g.dirty = true
}

// Resize discards the contents and reshapes the grid to width x height.
// Reshaping counts as a write.
func (g *Grid[T]) Resize(width, height int) {
	g.width, g.height = width, height
	g.cells = make([]T, width*height)
	g.dirty = true
}

func (g *Grid[T]) IsDirty() bool { return g.dirty }
func (g *Grid[T]) Clean()        { g.dirty = false }

// Flags is a tracked multi-byte bit-flag header.
type Flags struct {
	b     []byte
	dirty bool
}

// NewFlags returns a clean header of n bytes, all bits clear.
func NewFlags(n int) *Flags {
	return &Flags{b: make([]byte, n)}
}

func (f *Flags) Len() int {
	return len(f.b)
}

func (f *Flags) Get(bit FlagBit) bool {
	return GetFlag(f.b, bit)
}

func (f *Flags) Set(bit FlagBit, v bool) {
	SetFlag(f.b, bit, v)
	f.dirty = true
}

func (f *Flags) Byte(i int) byte {
	return f.b[i]
}

func (f *Flags) SetByte(i int, b byte) {
	f.b[i] = b
	f.dirty = true
}

// Bytes returns a copy of the raw header.
func (f *Flags) Bytes() []byte {
	out := make([]byte, len(f.b))
	copy(out, f.b)
	return out
}

func (f *Flags) IsDirty() bool { return f.dirty }
func (f *Flags) Clean()        { f.dirty = false }
