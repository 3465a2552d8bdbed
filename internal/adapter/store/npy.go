package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"agrirec/internal/domain"
)

// NumPy .npy format, version 1.0 on write; 1.0, 2.0 and 3.0 on read.
// https://numpy.org/doc/stable/reference/generated/numpy.lib.format.html

var npyMagic = []byte("\x93NUMPY")

const npyAlign = 64

var (
	errNpyMagic   = errors.New("not a .npy file")
	errNpyHeader  = errors.New("malformed .npy header")
	errNpyDtype   = errors.New("unsupported .npy dtype")
	errNpyFortran = errors.New("fortran-ordered .npy arrays are not supported")

	descrPattern   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

type npyHeader struct {
	descr  string
	rows   int
	dim    int
	offset int64 // bytes before the payload
}

// writeNpy encodes m as a little-endian float32 2-D array.
func writeNpy(w io.Writer, m *domain.Matrix) error {
	dict := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", m.Rows, m.Dim)

	// magic(6) + version(2) + header length(2) + dict + padding + '\n'
	total := len(npyMagic) + 4 + len(dict) + 1
	pad := (npyAlign - total%npyAlign) % npyAlign
	header := dict + strings.Repeat(" ", pad) + "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("npy header too long: %d bytes", len(header))
	}

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	buf := make([]byte, 4*m.Dim)
	for i := 0; i < m.Rows; i++ {
		for j, v := range m.Row(i) {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// readNpyHeader parses the preamble and leaves r positioned at the payload.
func readNpyHeader(r *bufio.Reader) (npyHeader, error) {
	var h npyHeader

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, magic); err != nil {
		return h, fmt.Errorf("%w: %v", errNpyMagic, err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return h, errNpyMagic
	}

	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return h, fmt.Errorf("%w: %v", errNpyHeader, err)
		}
		headerLen = int(n)
		h.offset = int64(len(magic)) + 2
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return h, fmt.Errorf("%w: %v", errNpyHeader, err)
		}
		if n > math.MaxUint16*16 {
			return h, fmt.Errorf("%w: header length %d", errNpyHeader, n)
		}
		headerLen = int(n)
		h.offset = int64(len(magic)) + 4
	default:
		return h, fmt.Errorf("%w: version %d", errNpyHeader, major)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, fmt.Errorf("%w: %v", errNpyHeader, err)
	}
	dict := string(raw)
	h.offset += int64(headerLen)

	m := descrPattern.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: missing descr", errNpyHeader)
	}
	h.descr = m[1]
	if h.descr != "<f4" && h.descr != "<f8" {
		return h, fmt.Errorf("%w: %s", errNpyDtype, h.descr)
	}

	if m = fortranPattern.FindStringSubmatch(dict); m != nil && m[1] == "True" {
		return h, errNpyFortran
	}

	m = shapePattern.FindStringSubmatch(dict)
	if m == nil {
		return h, fmt.Errorf("%w: missing shape", errNpyHeader)
	}
	var dims []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return h, fmt.Errorf("%w: shape %q", errNpyHeader, m[1])
		}
		dims = append(dims, n)
	}

	switch len(dims) {
	case 1:
		// A single saved vector.
		h.rows, h.dim = 1, dims[0]
		if dims[0] == 0 {
			h.rows = 0
		}
	case 2:
		h.rows, h.dim = dims[0], dims[1]
	default:
		return h, fmt.Errorf("%w: expected 2-D array, got shape %q", errNpyHeader, m[1])
	}
	return h, nil
}

// width returns the size in bytes of one element.
func (h npyHeader) width() int {
	if h.descr == "<f8" {
		return 8
	}
	return 4
}

// checkSize rejects shapes that overflow or claim more payload than the
// size bytes the source holds.
func (h npyHeader) checkSize(size int64) error {
	width := int64(h.width())
	rows, dim := int64(h.rows), int64(h.dim)
	if dim > math.MaxInt64/width {
		return fmt.Errorf("%w: shape (%d, %d) overflows", errNpyHeader, h.rows, h.dim)
	}
	if rows == 0 {
		return nil
	}
	if dim == 0 {
		return fmt.Errorf("%w: shape (%d, 0) has empty rows", errNpyHeader, h.rows)
	}
	if rows > math.MaxInt64/(dim*width) {
		return fmt.Errorf("%w: shape (%d, %d) overflows", errNpyHeader, h.rows, h.dim)
	}
	if payload := rows * dim * width; payload > size-h.offset {
		return fmt.Errorf("%w: shape (%d, %d) needs %d payload bytes, file has %d",
			errNpyHeader, h.rows, h.dim, payload, size-h.offset)
	}
	return nil
}

// readNpy decodes a float32 or float64 matrix from a source of size bytes.
func readNpy(r io.Reader, size int64) (*domain.Matrix, error) {
	br := bufio.NewReader(r)
	h, err := readNpyHeader(br)
	if err != nil {
		return nil, err
	}
	if err := h.checkSize(size); err != nil {
		return nil, err
	}

	m := &domain.Matrix{Rows: h.rows, Dim: h.dim, Data: make([]float32, h.rows*h.dim)}
	if h.rows == 0 {
		return m, nil
	}

	width := h.width()
	buf := make([]byte, width*h.dim)
	for i := 0; i < h.rows; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("truncated payload at row %d: %w", i, err)
		}
		row := m.Data[i*h.dim : (i+1)*h.dim]
		for j := range row {
			if width == 4 {
				row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
			} else {
				row[j] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[8*j:])))
			}
		}
	}
	return m, nil
}
