package summary

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire encoding for the TensorBoard event.proto / summary.proto messages.
// Only the fields the writer emits are encoded; readers tolerate absent
// optional fields.

// Event field numbers.
const (
	eventWallTime    = 1 // double
	eventStep        = 2 // int64
	eventFileVersion = 3 // string
	eventSummary     = 5 // message Summary
)

// Summary and Summary.Value field numbers.
const (
	summaryValue       = 1 // repeated message Value
	valueTag           = 1 // string
	valueSimpleValue   = 2 // float
	valueTensor        = 8 // message TensorProto
	valueMetadata      = 9 // message SummaryMetadata
	metadataPluginData = 1 // message PluginData
	pluginDataName     = 1 // string
	pluginDataContent  = 2 // bytes
	tensorDtype        = 1 // enum DataType
	tensorShape        = 2 // message TensorShapeProto
	tensorFloatVal     = 5 // repeated float, packed
	tensorStringVal    = 8 // repeated bytes
	tensorShapeDim     = 2 // repeated message Dim
	tensorShapeDimSize = 1 // int64
)

// TensorBoard DataType enum values.
const (
	dtFloat  = 1
	dtString = 7
	dtInt32  = 3
)

func appendDouble(b []byte, field protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, field, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendFloat(b []byte, field protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, field, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

func appendInt64(b []byte, field protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, field, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendString(b []byte, field protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, field protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessage(b []byte, field protowire.Number, msg []byte) []byte {
	return appendBytes(b, field, msg)
}

// encodeEvent builds an Event message. summaryMsg may be nil for the
// file-version event.
func encodeEvent(wallTime float64, step int64, fileVersion string, summaryMsg []byte) []byte {
	var b []byte
	b = appendDouble(b, eventWallTime, wallTime)
	if step != 0 {
		b = appendInt64(b, eventStep, step)
	}
	if fileVersion != "" {
		b = appendString(b, eventFileVersion, fileVersion)
	}
	if summaryMsg != nil {
		b = appendMessage(b, eventSummary, summaryMsg)
	}
	return b
}

// encodeScalarValue builds a Summary with one simple_value entry.
func encodeScalarValue(tag string, value float32) []byte {
	var v []byte
	v = appendString(v, valueTag, tag)
	v = appendFloat(v, valueSimpleValue, value)
	return appendMessage(nil, summaryValue, v)
}

// encodeTextValue builds a Summary carrying a string tensor routed to the
// text plugin.
func encodeTextValue(tag, text string) []byte {
	var shape []byte
	var dim []byte
	dim = appendInt64(dim, tensorShapeDimSize, 1)
	shape = appendMessage(shape, tensorShapeDim, dim)

	var tensor []byte
	tensor = appendInt64(tensor, tensorDtype, dtString)
	tensor = appendMessage(tensor, tensorShape, shape)
	tensor = appendBytes(tensor, tensorStringVal, []byte(text))

	var plugin []byte
	plugin = appendString(plugin, pluginDataName, "text")
	var meta []byte
	meta = appendMessage(meta, metadataPluginData, plugin)

	var v []byte
	v = appendString(v, valueTag, tag)
	v = appendMessage(v, valueTensor, tensor)
	v = appendMessage(v, valueMetadata, meta)
	return appendMessage(nil, summaryValue, v)
}

// encodeFloatTensorValue builds a Summary carrying a packed float tensor with
// the given shape, tagged for the named plugin. content rides along in the
// plugin data when non-nil.
func encodeFloatTensorValue(tag, plugin string, content []byte, data []float32, dims []int64) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		dim = appendInt64(dim, tensorShapeDimSize, d)
		shape = appendMessage(shape, tensorShapeDim, dim)
	}

	var packed []byte
	for _, f := range data {
		packed = protowire.AppendFixed32(packed, math.Float32bits(f))
	}

	var tensor []byte
	tensor = appendInt64(tensor, tensorDtype, dtFloat)
	tensor = appendMessage(tensor, tensorShape, shape)
	tensor = appendBytes(tensor, tensorFloatVal, packed)

	var v []byte
	v = appendString(v, valueTag, tag)
	v = appendMessage(v, valueTensor, tensor)
	if plugin != "" || content != nil {
		var pd []byte
		if plugin != "" {
			pd = appendString(pd, pluginDataName, plugin)
		}
		if content != nil {
			pd = appendBytes(pd, pluginDataContent, content)
		}
		var meta []byte
		meta = appendMessage(meta, metadataPluginData, pd)
		v = appendMessage(v, valueMetadata, meta)
	}
	return appendMessage(nil, summaryValue, v)
}
