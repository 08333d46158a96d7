package vm

// Memory models one of the datapath's two memories (data memory or
// instruction memory). Both share the same address/data-register
// latching behavior; only the cell type differs (int for data memory,
// Instruction for instruction memory), hence the type parameter.
type Memory[T any] struct {
	cells          map[int]T
	addressRegister int
	dataRegister    T
	nextFree        int
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{cells: make(map[int]T)}
}

// Allocate reserves size consecutive cells starting at the current
// allocation pointer and returns the base address. Reserved cells that
// do not exist yet are created holding the zero value of T.
func (m *Memory[T]) Allocate(size int) int {
	base := m.nextFree
	m.nextFree += size
	for addr := base; addr < m.nextFree; addr++ {
		if _, ok := m.cells[addr]; !ok {
			var zero T
			m.cells[addr] = zero
		}
	}
	return base
}

// SetAddress latches the address register, mirroring the datapath's
// address_register signal.
func (m *Memory[T]) SetAddress(addr int) {
	m.addressRegister = addr
}

// Write stores value at the latched address and latches it into the
// data register. The cell must already exist (created by Allocate or
// WriteAt).
func (m *Memory[T]) Write(value T) error {
	if _, ok := m.cells[m.addressRegister]; !ok {
		return errMemoryOutOfRange
	}
	m.dataRegister = value
	m.cells[m.addressRegister] = value
	return nil
}

// WriteAt creates or overwrites the cell at addr directly, bypassing
// the address register. The object-file loader uses it to create
// cells, and the INPUT read path uses it to stage the next input byte.
func (m *Memory[T]) WriteAt(addr int, value T) {
	m.cells[addr] = value
}

// Read latches and returns the value at the current address register.
func (m *Memory[T]) Read() (T, error) {
	v, ok := m.cells[m.addressRegister]
	if !ok {
		var zero T
		return zero, errMemoryOutOfRange
	}
	m.dataRegister = v
	return v, nil
}

func (m *Memory[T]) DataRegister() T {
	return m.dataRegister
}

func (m *Memory[T]) AddressRegister() int {
	return m.addressRegister
}
