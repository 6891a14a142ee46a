// Package stream adapts event payloads into pull-based sequences for
// chunked emission.
//
// Resolve classifies a payload: anything implementing Source or any
// receive channel is consumed lazily, slices and arrays become finite
// sequences, and everything else (including []byte and strings) is a
// single item. Batches then drains a Source in fixed-size batches,
// flushing the partial tail last.
package stream
