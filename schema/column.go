package schema

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/parquet-go"
	"github.com/segmentio/parquet-go/compress"
	"github.com/segmentio/parquet-go/compress/gzip"
	"github.com/segmentio/parquet-go/compress/snappy"
	"github.com/segmentio/parquet-go/compress/uncompressed"
	"github.com/segmentio/parquet-go/compress/zstd"
)

const DefaultCodec = "snappy"

var ErrUnknownCodec = errors.New("unknown compression codec")

// CodecByName resolves a codec name as accepted on the command line.
func CodecByName(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", DefaultCodec:
		return &snappy.Codec{}, nil
	case "zstd":
		return &zstd.Codec{}, nil
	case "gzip":
		return &gzip.Codec{}, nil
	case "none", "uncompressed":
		return &uncompressed.Codec{}, nil
	default:
		return nil, errors.Wrap(ErrUnknownCodec, name)
	}
}

func newIDColumn(codec compress.Codec) parquet.Node {
	node := parquet.String()
	node = parquet.Encoded(node, &parquet.Plain)
	return parquet.Compressed(node, codec)
}

// Opinion bodies are long and mostly unique, so they skip dictionaries.
func newTextColumn(codec compress.Codec) parquet.Node {
	node := parquet.String()
	node = parquet.Encoded(node, &parquet.DeltaLengthByteArray)
	node = parquet.Compressed(node, codec)
	return parquet.Optional(node)
}
