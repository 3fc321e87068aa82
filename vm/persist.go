package vm

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// chunkMagic tags a saved Chunk file, the way ngaro's own image format
// opens with a recognizable header before its cell stream.
const chunkMagic uint32 = 0x46524745 // "FRGE"

const chunkVersion uint32 = 1

// Save writes chunk to fileName in Forge's binary chunk format: a magic
// header and version, then the chunk tree recursively in this order: name,
// arity, register count, upvalue descriptors, instructions, line map,
// constant pool, children. The line map precedes the constant pool. All
// integers are little-endian. Save's counterpart, Load, reconstructs an identical Chunk
// without re-running the compiler.
func Save(fileName string, chunk *Chunk) error {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Wrap(err, "vm.Save")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, chunkMagic); err != nil {
		return errors.Wrap(err, "vm.Save")
	}
	if err := binary.Write(w, binary.LittleEndian, chunkVersion); err != nil {
		return errors.Wrap(err, "vm.Save")
	}
	if err := writeChunk(w, chunk); err != nil {
		return errors.Wrap(err, "vm.Save")
	}
	return w.Flush()
}

// Load reads a Chunk previously written by Save.
func Load(fileName string) (*Chunk, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrap(err, "vm.Load")
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "vm.Load")
	}
	if magic != chunkMagic {
		return nil, errors.Errorf("vm.Load: %s is not a Forge chunk file", fileName)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, errors.Wrap(err, "vm.Load")
	}
	if version != chunkVersion {
		return nil, errors.Errorf("vm.Load: unsupported chunk format version %d", version)
	}
	return readChunk(r)
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeChunk(w io.Writer, c *Chunk) error {
	if err := writeString(w, c.Name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(c.Arity)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(c.MaxRegisters)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Upvalues))); err != nil {
		return err
	}
	for _, u := range c.Upvalues {
		if err := binary.Write(w, binary.LittleEndian, u.ParentReg); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, u.ChildReg); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Code))); err != nil {
		return err
	}
	for _, ins := range c.Code {
		if err := binary.Write(w, binary.LittleEndian, uint32(ins)); err != nil {
			return err
		}
	}
	for _, ln := range c.Lines {
		if err := binary.Write(w, binary.LittleEndian, uint32(ln)); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Constants))); err != nil {
		return err
	}
	for _, k := range c.Constants {
		if err := binary.Write(w, binary.LittleEndian, uint8(k.Kind)); err != nil {
			return err
		}
		switch k.Kind {
		case ConstInt:
			if err := binary.Write(w, binary.LittleEndian, k.Int); err != nil {
				return err
			}
		case ConstFloat:
			if err := binary.Write(w, binary.LittleEndian, k.Flt); err != nil {
				return err
			}
		case ConstString:
			if err := writeString(w, k.Str); err != nil {
				return err
			}
		case ConstBool:
			b := uint8(0)
			if k.Bool {
				b = 1
			}
			if err := binary.Write(w, binary.LittleEndian, b); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(c.Children))); err != nil {
		return err
	}
	for _, child := range c.Children {
		if err := writeChunk(w, child); err != nil {
			return err
		}
	}
	return nil
}

func readChunk(r io.Reader) (*Chunk, error) {
	c := &Chunk{}
	var err error
	if c.Name, err = readString(r); err != nil {
		return nil, err
	}
	var arity, maxRegs uint32
	if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &maxRegs); err != nil {
		return nil, err
	}
	c.Arity = int(arity)
	c.MaxRegisters = int(maxRegs)

	var nUpvals uint32
	if err := binary.Read(r, binary.LittleEndian, &nUpvals); err != nil {
		return nil, err
	}
	c.Upvalues = make([]UpvalDesc, nUpvals)
	for i := range c.Upvalues {
		if err := binary.Read(r, binary.LittleEndian, &c.Upvalues[i].ParentReg); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &c.Upvalues[i].ChildReg); err != nil {
			return nil, err
		}
	}

	var nCode uint32
	if err := binary.Read(r, binary.LittleEndian, &nCode); err != nil {
		return nil, err
	}
	c.Code = make([]Instr, nCode)
	for i := range c.Code {
		var raw uint32
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, err
		}
		c.Code[i] = Instr(raw)
	}
	c.Lines = make([]int, nCode)
	for i := range c.Lines {
		var ln uint32
		if err := binary.Read(r, binary.LittleEndian, &ln); err != nil {
			return nil, err
		}
		c.Lines[i] = int(ln)
	}

	var nConst uint32
	if err := binary.Read(r, binary.LittleEndian, &nConst); err != nil {
		return nil, err
	}
	c.Constants = make([]Constant, nConst)
	for i := range c.Constants {
		var kind uint8
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		k := Constant{Kind: ConstKind(kind)}
		switch k.Kind {
		case ConstInt:
			if err := binary.Read(r, binary.LittleEndian, &k.Int); err != nil {
				return nil, err
			}
		case ConstFloat:
			if err := binary.Read(r, binary.LittleEndian, &k.Flt); err != nil {
				return nil, err
			}
		case ConstString:
			if k.Str, err = readString(r); err != nil {
				return nil, err
			}
		case ConstBool:
			var b uint8
			if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
				return nil, err
			}
			k.Bool = b != 0
		default:
			return nil, errors.Errorf("vm.Load: unknown constant tag %d", kind)
		}
		c.Constants[i] = k
	}

	var nChildren uint32
	if err := binary.Read(r, binary.LittleEndian, &nChildren); err != nil {
		return nil, err
	}
	c.Children = make([]*Chunk, nChildren)
	for i := range c.Children {
		child, err := readChunk(r)
		if err != nil {
			return nil, err
		}
		c.Children[i] = child
	}
	return c, nil
}
