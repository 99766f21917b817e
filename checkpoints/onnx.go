package checkpoints

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX interchange for trained weights. Only the subset of the ONNX
// schema needed to round-trip named float32 initializers is encoded:
// a ModelProto wrapping a GraphProto whose initializer list carries one
// TensorProto per parameter. Group membership is preserved by prefixing
// tensor names with "<group>:".
//
// Field numbers follow onnx.proto:
//   ModelProto:   ir_version=1, producer_name=2, graph=7, opset_import=8
//   OperatorSetIdProto: domain=1, version=2
//   GraphProto:   name=2, initializer=5
//   TensorProto:  dims=1, data_type=2, name=8, raw_data=9

const (
	onnxIRVersion    = 8
	onnxOpsetVersion = 17
	onnxFloatType    = 1

	modelFieldIRVersion    = 1
	modelFieldProducerName = 2
	modelFieldGraph        = 7
	modelFieldOpsetImport  = 8

	opsetFieldDomain  = 1
	opsetFieldVersion = 2

	graphFieldName        = 2
	graphFieldInitializer = 5

	tensorFieldDims     = 1
	tensorFieldDataType = 2
	tensorFieldName     = 8
	tensorFieldRawData  = 9
)

// ExportONNX writes all checkpoint weights to an ONNX model file.
func ExportONNX(path string, weights []WeightTensor) error {
	var graph []byte
	graph = protowire.AppendTag(graph, graphFieldName, protowire.BytesType)
	graph = protowire.AppendString(graph, "artReCycleGAN")
	for i := range weights {
		graph = protowire.AppendTag(graph, graphFieldInitializer, protowire.BytesType)
		graph = protowire.AppendBytes(graph, encodeTensorProto(&weights[i]))
	}

	var opset []byte
	opset = protowire.AppendTag(opset, opsetFieldDomain, protowire.BytesType)
	opset = protowire.AppendString(opset, "")
	opset = protowire.AppendTag(opset, opsetFieldVersion, protowire.VarintType)
	opset = protowire.AppendVarint(opset, onnxOpsetVersion)

	var model []byte
	model = protowire.AppendTag(model, modelFieldIRVersion, protowire.VarintType)
	model = protowire.AppendVarint(model, onnxIRVersion)
	model = protowire.AppendTag(model, modelFieldProducerName, protowire.BytesType)
	model = protowire.AppendString(model, "artReCycleGAN")
	model = protowire.AppendTag(model, modelFieldGraph, protowire.BytesType)
	model = protowire.AppendBytes(model, graph)
	model = protowire.AppendTag(model, modelFieldOpsetImport, protowire.BytesType)
	model = protowire.AppendBytes(model, opset)

	if err := os.WriteFile(path, model, 0o644); err != nil {
		return errors.Wrapf(err, "writing ONNX model %s", path)
	}
	return nil
}

// ImportONNX reads the initializers of an ONNX model written by
// ExportONNX back into weight tensors.
func ImportONNX(path string) ([]WeightTensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading ONNX model %s", path)
	}

	var graph []byte
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.New("malformed ONNX model: bad tag")
		}
		data = data[n:]
		if num == modelFieldGraph && typ == protowire.BytesType {
			g, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, errors.New("malformed ONNX model: bad graph field")
			}
			graph = g
			data = data[m:]
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, data)
		if m < 0 {
			return nil, errors.New("malformed ONNX model: bad field value")
		}
		data = data[m:]
	}
	if graph == nil {
		return nil, errors.New("ONNX model has no graph")
	}

	var weights []WeightTensor
	for len(graph) > 0 {
		num, typ, n := protowire.ConsumeTag(graph)
		if n < 0 {
			return nil, errors.New("malformed ONNX graph: bad tag")
		}
		graph = graph[n:]
		if num == graphFieldInitializer && typ == protowire.BytesType {
			raw, m := protowire.ConsumeBytes(graph)
			if m < 0 {
				return nil, errors.New("malformed ONNX graph: bad initializer")
			}
			graph = graph[m:]
			w, err := decodeTensorProto(raw)
			if err != nil {
				return nil, err
			}
			weights = append(weights, w)
			continue
		}
		m := protowire.ConsumeFieldValue(num, typ, graph)
		if m < 0 {
			return nil, errors.New("malformed ONNX graph: bad field value")
		}
		graph = graph[m:]
	}
	return weights, nil
}

func encodeTensorProto(w *WeightTensor) []byte {
	var b []byte
	for _, d := range w.Shape {
		b = protowire.AppendTag(b, tensorFieldDims, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d))
	}
	b = protowire.AppendTag(b, tensorFieldDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, onnxFloatType)
	b = protowire.AppendTag(b, tensorFieldName, protowire.BytesType)
	b = protowire.AppendString(b, w.Group+":"+w.Name)

	raw := make([]byte, 4*len(w.Data))
	for i, v := range w.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	b = protowire.AppendTag(b, tensorFieldRawData, protowire.BytesType)
	b = protowire.AppendBytes(b, raw)
	return b
}

func decodeTensorProto(data []byte) (WeightTensor, error) {
	var w WeightTensor
	var raw []byte
	dataType := uint64(0)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return w, errors.New("malformed tensor proto: bad tag")
		}
		data = data[n:]

		switch {
		case num == tensorFieldDims && typ == protowire.VarintType:
			d, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return w, errors.New("malformed tensor proto: bad dim")
			}
			w.Shape = append(w.Shape, int(d))
			data = data[m:]
		case num == tensorFieldDataType && typ == protowire.VarintType:
			d, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return w, errors.New("malformed tensor proto: bad data type")
			}
			dataType = d
			data = data[m:]
		case num == tensorFieldName && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return w, errors.New("malformed tensor proto: bad name")
			}
			w.Group, w.Name = splitGroupName(s)
			data = data[m:]
		case num == tensorFieldRawData && typ == protowire.BytesType:
			r, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return w, errors.New("malformed tensor proto: bad raw data")
			}
			raw = r
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return w, errors.New("malformed tensor proto: bad field value")
			}
			data = data[m:]
		}
	}

	if dataType != onnxFloatType {
		return w, errors.Errorf("tensor %q has unsupported data type %d (only float32 is supported)", w.Name, dataType)
	}
	if len(raw)%4 != 0 {
		return w, errors.Errorf("tensor %q raw data length %d is not a multiple of 4", w.Name, len(raw))
	}
	w.Data = make([]float32, len(raw)/4)
	for i := range w.Data {
		w.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}

	expected := 1
	for _, d := range w.Shape {
		expected *= d
	}
	if len(w.Shape) > 0 && expected != len(w.Data) {
		return w, errors.Errorf("tensor %q: shape %v implies %d elements, raw data has %d", w.Name, w.Shape, expected, len(w.Data))
	}
	return w, nil
}

func splitGroupName(s string) (group, name string) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:]
		}
	}
	return "", s
}
