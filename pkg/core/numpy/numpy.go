// Package numpy reads and writes rasters in NumPy's `.npy` file format.
//
// Arrays of rank 2 (`[height, width]`) are read as single-channel rasters, and arrays of rank 3
// (`[height, width, channels]`) as multi-channel rasters. Single-channel rasters are written back
// with rank 2, so masks and labels keep their usual NumPy shape.
package numpy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/tiling/pkg/core/raster"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

const magic = "\x93NUMPY"

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// FromNpyFile reads a .npy file into a raster, converting the stored values to T.
func FromNpyFile[T dtypes.NumberNotComplex](filePath string) (*raster.Raster[T], error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open .npy file %q", filePath)
	}
	defer func() { _ = file.Close() }()
	r, err := FromNpyReader[T](file)
	if err != nil {
		return nil, errors.WithMessagef(err, "while reading %q", filePath)
	}
	return r, nil
}

// FromNpyReader reads a .npy stream into a raster, converting the stored values to T.
func FromNpyReader[T dtypes.NumberNotComplex](r io.Reader) (*raster.Raster[T], error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	descr, dims, fortranOrder, err := parseNpyHeader(header)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse .npy header")
	}
	if strings.HasPrefix(descr, ">") {
		return nil, errors.Errorf("big-endian .npy files (%q) are not supported", descr)
	}
	dtype, err := npyDTypeToDType(descr)
	if err != nil {
		return nil, err
	}

	var height, width, channels int
	switch len(dims) {
	case 2:
		height, width, channels = dims[0], dims[1], 1
	case 3:
		height, width, channels = dims[0], dims[1], dims[2]
	default:
		return nil, errors.Errorf(".npy array has shape %v, only rank 2 or 3 arrays can be read as rasters", dims)
	}
	if channels <= 0 {
		return nil, errors.Errorf(".npy array has shape %v, with no channels", dims)
	}

	dtypeSize := dtype.Size()
	data := make([]byte, height*width*channels*dtypeSize)
	if _, err = io.ReadFull(r, data); err != nil {
		return nil, errors.Wrapf(err, "failed to read array data (expected %d bytes)", len(data))
	}
	if fortranOrder {
		cData := make([]byte, len(data))
		fortranToCLayout(dtypeSize, dims, data, cData)
		data = cData
	}

	out := raster.New[T](height, width, channels)
	if err = decodeValues(dtype, data, out.Data); err != nil {
		return nil, err
	}
	return out, nil
}

// readHeader validates the preamble of a .npy stream and returns the header dictionary.
func readHeader(r io.Reader) (string, error) {
	preamble := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return "", errors.Wrapf(err, "failed to read .npy magic string and version")
	}
	if string(preamble[:len(magic)]) != magic {
		return "", errors.Errorf("invalid .npy file format: magic string mismatch")
	}
	major, minor := preamble[len(magic)], preamble[len(magic)+1]
	var headerLen int
	switch {
	case major == 1:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return "", errors.Wrapf(err, "failed to read header length (v1.0)")
		}
		headerLen = int(binary.LittleEndian.Uint16(lenBytes))
	case major == 2 || major == 3:
		lenBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return "", errors.Wrapf(err, "failed to read header length (v%d.%d)", major, minor)
		}
		headerLen = int(binary.LittleEndian.Uint32(lenBytes))
	default:
		return "", errors.Errorf("unsupported .npy version: %d.%d", major, minor)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return "", errors.Wrapf(err, "failed to read header")
	}
	return string(headerBytes), nil
}

// parseNpyHeader extracts dtype, shape, and fortran_order from the .npy header dictionary, e.g.:
// "{'descr': '<f4', 'fortran_order': False, 'shape': (1, 2, 3), }"
func parseNpyHeader(header string) (descr string, shape []int, fortranOrder bool, err error) {
	mDescr := reDescr.FindStringSubmatch(header)
	if len(mDescr) < 2 {
		err = errors.Errorf("could not find 'descr' in header: %q", header)
		return
	}
	descr = mDescr[1]

	mFortran := reFortran.FindStringSubmatch(header)
	if len(mFortran) < 2 {
		err = errors.Errorf("could not find 'fortran_order' in header: %q", header)
		return
	}
	fortranOrder = mFortran[1] == "True"

	mShape := reShape.FindStringSubmatch(header)
	if len(mShape) < 2 {
		err = errors.Errorf("could not find 'shape' in header: %q", header)
		return
	}
	shape = []int{}
	for _, p := range strings.Split(mShape[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" { // Trailing comma, as in "(10,)".
			continue
		}
		val, pErr := strconv.Atoi(p)
		if pErr != nil {
			err = errors.Wrapf(pErr, "invalid shape value %q in header", p)
			return
		}
		shape = append(shape, val)
	}
	return
}

// fortranToCLayout copies column-major (Fortran) ordered data to row-major (C) order.
func fortranToCLayout(dtypeSize int, dims []int, fortranData, cData []byte) {
	total := len(cData) / dtypeSize
	coordinates := make([]int, len(dims))
	for cIndex := 0; cIndex < total; cIndex++ {
		tmp := cIndex
		for axis := len(dims) - 1; axis >= 0; axis-- {
			coordinates[axis] = tmp % dims[axis]
			tmp /= dims[axis]
		}
		fortranIndex, multiplier := 0, 1
		for axis, dim := range dims {
			fortranIndex += coordinates[axis] * multiplier
			multiplier *= dim
		}
		copy(cData[cIndex*dtypeSize:(cIndex+1)*dtypeSize],
			fortranData[fortranIndex*dtypeSize:(fortranIndex+1)*dtypeSize])
	}
}

// npyDTypeToDType converts a NumPy dtype string to a dtypes.DType.
func npyDTypeToDType(npyType string) (dtypes.DType, error) {
	switch {
	case npyType == "|b1", npyType == "?", npyType == "b1":
		return dtypes.Bool, nil
	case strings.HasSuffix(npyType, "i1"):
		return dtypes.Int8, nil
	case strings.HasSuffix(npyType, "u1"):
		return dtypes.Uint8, nil
	case strings.HasSuffix(npyType, "i2"):
		return dtypes.Int16, nil
	case strings.HasSuffix(npyType, "u2"):
		return dtypes.Uint16, nil
	case strings.HasSuffix(npyType, "i4"):
		return dtypes.Int32, nil
	case strings.HasSuffix(npyType, "u4"):
		return dtypes.Uint32, nil
	case strings.HasSuffix(npyType, "i8"):
		return dtypes.Int64, nil
	case strings.HasSuffix(npyType, "u8"):
		return dtypes.Uint64, nil
	case strings.HasSuffix(npyType, "f2"):
		return dtypes.Float16, nil
	case strings.HasSuffix(npyType, "f4"):
		return dtypes.Float32, nil
	case strings.HasSuffix(npyType, "f8"):
		return dtypes.Float64, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported NumPy dtype for rasters: %q", npyType)
	}
}

// dtypeToNpy converts a dtypes.DType to a little-endian NumPy dtype string.
func dtypeToNpy(dtype dtypes.DType) (string, error) {
	switch dtype {
	case dtypes.Int8:
		return "|i1", nil
	case dtypes.Uint8:
		return "|u1", nil
	case dtypes.Int16:
		return "<i2", nil
	case dtypes.Uint16:
		return "<u2", nil
	case dtypes.Int32:
		return "<i4", nil
	case dtypes.Uint32:
		return "<u4", nil
	case dtypes.Int64:
		return "<i8", nil
	case dtypes.Uint64:
		return "<u8", nil
	case dtypes.Float32:
		return "<f4", nil
	case dtypes.Float64:
		return "<f8", nil
	}
	return "", errors.Errorf("unsupported DType for .npy: %s", dtype)
}

// decodeValues converts little-endian values of the given dtype into T.
func decodeValues[T dtypes.NumberNotComplex](dtype dtypes.DType, data []byte, out []T) error {
	size := dtype.Size()
	le := binary.LittleEndian
	for ii := range out {
		b := data[ii*size : (ii+1)*size]
		switch dtype {
		case dtypes.Bool, dtypes.Uint8:
			out[ii] = T(b[0])
		case dtypes.Int8:
			out[ii] = T(int8(b[0]))
		case dtypes.Int16:
			out[ii] = T(int16(le.Uint16(b)))
		case dtypes.Uint16:
			out[ii] = T(le.Uint16(b))
		case dtypes.Int32:
			out[ii] = T(int32(le.Uint32(b)))
		case dtypes.Uint32:
			out[ii] = T(le.Uint32(b))
		case dtypes.Int64:
			out[ii] = T(int64(le.Uint64(b)))
		case dtypes.Uint64:
			out[ii] = T(le.Uint64(b))
		case dtypes.Float16:
			out[ii] = T(float16.Frombits(le.Uint16(b)).Float32())
		case dtypes.Float32:
			out[ii] = T(math.Float32frombits(le.Uint32(b)))
		case dtypes.Float64:
			out[ii] = T(math.Float64frombits(le.Uint64(b)))
		default:
			return errors.Errorf("can't decode .npy values of dtype %s", dtype)
		}
	}
	return nil
}

// encodeValues writes values as little-endian bytes of their own dtype.
func encodeValues[T dtypes.NumberNotComplex](values []T) ([]byte, error) {
	dtype := dtypes.FromGenericsType[T]()
	size := dtype.Size()
	le := binary.LittleEndian
	buf := make([]byte, len(values)*size)
	for ii, v := range values {
		b := buf[ii*size : (ii+1)*size]
		switch dtype {
		case dtypes.Int8, dtypes.Uint8:
			b[0] = byte(v)
		case dtypes.Int16, dtypes.Uint16:
			le.PutUint16(b, uint16(v))
		case dtypes.Int32, dtypes.Uint32:
			le.PutUint32(b, uint32(v))
		case dtypes.Int64, dtypes.Uint64:
			le.PutUint64(b, uint64(v))
		case dtypes.Float32:
			le.PutUint32(b, math.Float32bits(float32(v)))
		case dtypes.Float64:
			le.PutUint64(b, math.Float64bits(float64(v)))
		default:
			return nil, errors.Errorf("can't encode values of dtype %s to .npy", dtype)
		}
	}
	return buf, nil
}

// ToNpyWriter serializes a raster to w in .npy format (version 1.0).
func ToNpyWriter[T dtypes.NumberNotComplex](r *raster.Raster[T], w io.Writer) error {
	descr, err := dtypeToNpy(r.DType())
	if err != nil {
		return err
	}
	var shapeTuple string
	if r.Channels == 1 {
		shapeTuple = fmt.Sprintf("(%d, %d)", r.Height, r.Width)
	} else {
		shapeTuple = fmt.Sprintf("(%d, %d, %d)", r.Height, r.Width, r.Channels)
	}
	var headerBuf bytes.Buffer
	_, _ = fmt.Fprintf(&headerBuf, "{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple)
	// Preamble (magic + version + header length = 10 bytes) plus header must be a multiple of 16,
	// and the header ends with a newline.
	for (10+headerBuf.Len()+1)%16 != 0 {
		headerBuf.WriteByte(' ')
	}
	headerBuf.WriteByte('\n')

	data, err := encodeValues(r.Data)
	if err != nil {
		return err
	}
	preamble := make([]byte, 0, 10)
	preamble = append(preamble, magic...)
	preamble = append(preamble, 1, 0)
	preamble = binary.LittleEndian.AppendUint16(preamble, uint16(headerBuf.Len()))
	for _, chunk := range [][]byte{preamble, headerBuf.Bytes(), data} {
		if _, err = w.Write(chunk); err != nil {
			return errors.Wrapf(err, "failed to write .npy data")
		}
	}
	return nil
}

// ToNpyFile serializes a raster to a .npy file.
func ToNpyFile[T dtypes.NumberNotComplex](r *raster.Raster[T], filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create .npy file %q", filePath)
	}
	if err = ToNpyWriter(r, file); err != nil {
		_ = file.Close()
		return errors.WithMessagef(err, "while writing %q", filePath)
	}
	return errors.Wrapf(file.Close(), "failed to close %q", filePath)
}
