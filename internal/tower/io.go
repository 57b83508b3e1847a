package tower

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platefeed/recsys/internal/recerrors"
)

// Weights file layout, little-endian throughout:
//
//	magic "TTOWERW1" | uint32 tensor count
//	per tensor: uint16 name length | name bytes | uint32 rows | uint32 cols
//	            | rows*cols float32 values
var weightsMagic = [8]byte{'T', 'T', 'O', 'W', 'E', 'R', 'W', '1'}

const maxTensorName = 256

// ReadWeights loads a weights file and validates it against the sidecar.
func ReadWeights(path string, sc *Sidecar) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, recerrors.NewModelLoadError(path, fmt.Sprintf("open weights: %v", err))
	}
	defer f.Close()

	tensors, err := readTensors(bufio.NewReader(f))
	if err != nil {
		return nil, recerrors.NewModelLoadError(path, err.Error())
	}

	w, err := FromTensors(tensors, sc)
	if err != nil {
		return nil, recerrors.NewModelLoadError(path, err.Error())
	}

	return w, nil
}

func readTensors(r io.Reader) (map[string]*Matrix, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	if magic != weightsMagic {
		return nil, fmt.Errorf("bad magic %q, not a weights file", magic)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}

	tensors := make(map[string]*Matrix, count)

	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("tensor %d: read name length: %w", i, err)
		}

		if nameLen == 0 || nameLen > maxTensorName {
			return nil, fmt.Errorf("tensor %d: implausible name length %d", i, nameLen)
		}

		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("tensor %d: read name: %w", i, err)
		}

		var rows, cols uint32
		if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
			return nil, fmt.Errorf("tensor %q: read rows: %w", name, err)
		}

		if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
			return nil, fmt.Errorf("tensor %q: read cols: %w", name, err)
		}

		m := NewMatrix(int(rows), int(cols))
		if err := binary.Read(r, binary.LittleEndian, m.Data); err != nil {
			return nil, fmt.Errorf("tensor %q: read values: %w", name, err)
		}

		if _, dup := tensors[string(name)]; dup {
			return nil, fmt.Errorf("duplicate tensor %q", name)
		}

		tensors[string(name)] = m
	}

	return tensors, nil
}

// WriteWeights serializes weights to path, tensors in name order.
func WriteWeights(path string, w *Weights) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create weights file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := writeTensors(bw, w.tensors()); err != nil {
		f.Close()
		return err
	}

	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush weights file: %w", err)
	}

	return f.Close()
}

func writeTensors(w io.Writer, tensors map[string]*Matrix) error {
	if _, err := w.Write(weightsMagic[:]); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(tensors))); err != nil {
		return err
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		m := tensors[name]

		if err := binary.Write(w, binary.LittleEndian, uint16(len(name))); err != nil {
			return err
		}

		if _, err := io.WriteString(w, name); err != nil {
			return err
		}

		if err := binary.Write(w, binary.LittleEndian, uint32(m.Rows)); err != nil {
			return err
		}

		if err := binary.Write(w, binary.LittleEndian, uint32(m.Cols)); err != nil {
			return err
		}

		if err := binary.Write(w, binary.LittleEndian, m.Data); err != nil {
			return err
		}
	}

	return nil
}
