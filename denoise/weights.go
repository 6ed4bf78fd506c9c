package denoise

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio/npz"
)

// Network weights travel as an npz archive, one entry per parameter:
//
//	conv1.weight, conv1.bias
//	res<i>.conv<1|2|3>.weight|bias      i in 1..blocks
//	res<i>.skip.weight|bias             only when the block reshapes channels
//	regression.weight, regression.bias
//	cres<i>.conv<1|2|3>.weight|bias     i in 1..blocks_class
//	cres<i>.skip.weight|bias            only when the block reshapes channels
//	classification.weight, classification.bias
//	meta.version, meta.channels, meta.kernel_size, meta.kernel_size_class,
//	meta.dilation, meta.blocks, meta.blocks_class
//
// Convolution weights are float64 arrays of shape (out, in, k) flattened row
// major; biases are float64 of shape (out,).  meta entries are one-element
// int64 arrays.  Checkpoints trained with batch normalization must have it
// folded into the convolution weights before export.  Archive member names
// may carry the ".npy" suffix np.savez appends.
const weightsVersion = 1

// npzArchive indexes an open npz reader by logical entry name, with or
// without the ".npy" member suffix.
type npzArchive struct {
	r    *npz.Reader
	keys map[string]string
}

func newNpzArchive(r *npz.Reader) *npzArchive {
	a := &npzArchive{r: r, keys: make(map[string]string)}
	for _, k := range r.Keys() {
		a.keys[strings.TrimSuffix(k, ".npy")] = k
	}
	return a
}

func (a *npzArchive) floats(name string, want int) ([]float64, error) {
	key, ok := a.keys[name]
	if !ok {
		return nil, errors.Errorf("weights: missing entry %s", name)
	}
	var vals []float64
	if err := a.r.Read(key, &vals); err != nil {
		return nil, errors.Wrapf(err, "weights: entry %s", name)
	}
	if len(vals) != want {
		return nil, errors.Errorf("weights: entry %s has %d values, want %d", name, len(vals), want)
	}
	return vals, nil
}

func (a *npzArchive) integer(name string) (int, error) {
	key, ok := a.keys[name]
	if !ok {
		return 0, errors.Errorf("weights: missing entry %s", name)
	}
	var vals []int64
	if err := a.r.Read(key, &vals); err != nil {
		return 0, errors.Wrapf(err, "weights: entry %s", name)
	}
	if len(vals) != 1 {
		return 0, errors.Errorf("weights: entry %s has %d values, want a scalar", name, len(vals))
	}
	return int(vals[0]), nil
}

func (a *npzArchive) conv(prefix string, in, out, kernel, dilation int) (conv1d, error) {
	w, err := a.floats(prefix+".weight", out*in*kernel)
	if err != nil {
		return conv1d{}, err
	}
	b, err := a.floats(prefix+".bias", out)
	if err != nil {
		return conv1d{}, err
	}
	cv := conv1d{in: in, out: out, kernel: kernel, dilation: dilation, bias: b}
	cv.weight = make([][][]float64, out)
	for o := range cv.weight {
		rows := make([][]float64, in)
		for c := range rows {
			base := (o*in + c) * kernel
			rows[c] = w[base : base+kernel]
		}
		cv.weight[o] = rows
	}
	return cv, nil
}

func (a *npzArchive) block(prefix string, channels, kernel, dilation int) (resBlock, error) {
	var b resBlock
	var err error
	if b.conv1, err = a.conv(prefix+".conv1", channels, channels, kernel, dilation); err != nil {
		return b, err
	}
	if b.conv2, err = a.conv(prefix+".conv2", channels, channels, kernel, dilation); err != nil {
		return b, err
	}
	if b.conv3, err = a.conv(prefix+".conv3", channels, channels, kernel, dilation); err != nil {
		return b, err
	}
	if _, ok := a.keys[prefix+".skip.weight"]; ok {
		skip, serr := a.conv(prefix+".skip", channels, channels, 1, 1)
		if serr != nil {
			return b, serr
		}
		b.skip = &skip
	}
	return b, nil
}

func readNet(a *npzArchive) (*Net, error) {
	version, err := a.integer("meta.version")
	if err != nil {
		return nil, err
	}
	if version != weightsVersion {
		return nil, errors.Errorf("weights: unsupported version %d (want %d)", version, weightsVersion)
	}
	var cfg Config
	if cfg.Channels, err = a.integer("meta.channels"); err != nil {
		return nil, err
	}
	if cfg.KernelSize, err = a.integer("meta.kernel_size"); err != nil {
		return nil, err
	}
	if cfg.KernelSizeClass, err = a.integer("meta.kernel_size_class"); err != nil {
		return nil, err
	}
	if cfg.Dilation, err = a.integer("meta.dilation"); err != nil {
		return nil, err
	}
	if cfg.Blocks, err = a.integer("meta.blocks"); err != nil {
		return nil, err
	}
	if cfg.BlocksClass, err = a.integer("meta.blocks_class"); err != nil {
		return nil, err
	}
	if err = cfg.validate(); err != nil {
		return nil, err
	}
	net := &Net{cfg: cfg}
	if net.conv1, err = a.conv("conv1", 1, cfg.Channels, cfg.KernelSize, cfg.Dilation); err != nil {
		return nil, err
	}
	net.blocks = make([]resBlock, cfg.Blocks)
	for i := range net.blocks {
		prefix := fmt.Sprintf("res%d", i+1)
		if net.blocks[i], err = a.block(prefix, cfg.Channels, cfg.KernelSize, cfg.Dilation); err != nil {
			return nil, err
		}
	}
	if net.reg, err = a.conv("regression", cfg.Channels, 1, cfg.KernelSize, cfg.Dilation); err != nil {
		return nil, err
	}
	net.blocksClass = make([]resBlock, cfg.BlocksClass)
	for i := range net.blocksClass {
		prefix := fmt.Sprintf("cres%d", i+1)
		if net.blocksClass[i], err = a.block(prefix, cfg.Channels, cfg.KernelSizeClass, cfg.Dilation); err != nil {
			return nil, err
		}
	}
	if net.class, err = a.conv("classification", cfg.Channels, 1, cfg.KernelSizeClass, cfg.Dilation); err != nil {
		return nil, err
	}
	return net, nil
}

// ReadNet parses a network from an npz weights archive.
func ReadNet(r io.ReaderAt, size int64) (net *Net, err error) {
	var rd *npz.Reader
	if rd, err = npz.NewReader(r, size); err != nil {
		return nil, errors.Wrap(err, "weights: parsing archive")
	}
	defer func() {
		if e := rd.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return readNet(newNpzArchive(rd))
}

// LoadNet reads network weights from the npz archive at path.
func LoadNet(path string) (net *Net, err error) {
	ctx := vcontext.Background()
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if net, err = ReadNet(bytes.NewReader(data), int64(len(data))); err != nil {
		err = errors.Wrapf(err, "loading %s", path)
	}
	return
}
