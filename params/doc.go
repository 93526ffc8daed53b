// Package params holds the decode parameters pushed into the engine before a
// file is opened.
//
// Requests are sparse maps keyed by LibRaw option names ("half_size",
// "user_mul", "output_profile", ...). Apply translates a request into Params
// using the Fields table:
//
//	p := params.Defaults()
//	res, err := params.Apply(&p, params.Request{
//	    "half_size": 1,
//	    "user_mul":  []any{2.1, 1.0, 1.4, 1.0},
//	})
//
// String options end up as raw NUL-terminated buffers inside the engine.
// StringStore owns those buffers for a backend and releases them on
// replacement and teardown.
package params
