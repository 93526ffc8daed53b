// Package decoder runs one raw image through a LibRaw engine session.
//
// A Decoder moves through Created, Opened, Unpacked and Processed. Open
// performs the whole pipeline: it copies the input, applies the option
// request, pushes only the options the request named into the engine and
// then calls open_buffer, unpack and dcraw_process in turn. Each stage that
// returns a non-success status stops the pipeline with an *errors.EngineError
// naming the stage and carrying LibRaw's code.
//
//	d := decoder.New(inst, decoder.WithLogger(log))
//	defer d.Close(ctx)
//
//	if err := d.Open(ctx, raw, params.Request{"output_bps": 16}); err != nil {
//	    return err
//	}
//	meta, err := d.Metadata(ctx)
//	img, err := d.ImageData(ctx)
//
// # Image export
//
// ImageData returns an owned copy. WithView passes a zero-copy view to a
// callback and releases the engine buffer when the callback returns:
//
//	err := d.WithView(ctx, func(v decoder.View) error {
//	    return consume(v.Uint16())
//	})
//
// Either way the engine buffer is released exactly once. An engine that
// produces no image yields errors.ErrNoData; a bit depth other than 8 or 16
// yields errors.ErrUnsupportedBitDepth.
//
// # Lifecycle
//
// A decoder handles one input. Open on a used decoder returns
// errors.ErrReused; Metadata and ImageData before a successful Open, or after
// Close, return errors.ErrUninitialized. Decoders are not safe for concurrent
// use; callers serialize access.
package decoder
