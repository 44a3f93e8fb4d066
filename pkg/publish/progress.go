package publish

import (
	"context"
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/slipway-ci/slipway/pkg/build"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// uploadProgress renders per-file upload bars. Off a terminal the bars
// still account bytes but render nowhere; the console lines carry the
// outcome.
type uploadProgress struct {
	progress *mpb.Progress
}

func newProgress(ctx context.Context) *uploadProgress {
	out := io.Discard
	if console.IsTTY(os.Stderr) {
		out = os.Stderr
	}
	return &uploadProgress{
		progress: mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(out)),
	}
}

// open returns the reader the upload should consume and a cleanup to
// run when the upload finishes, successful or not.
func (u *uploadProgress) open(artifact *build.Artifact) (io.Reader, func(), error) {
	file, err := os.Open(artifact.Path)
	if err != nil {
		return nil, nil, err
	}

	bar := u.progress.New(artifact.Size,
		mpb.BarStyle().Rbound("|"),
		mpb.PrependDecorators(
			decor.Name(artifact.Filename+" "),
			decor.Counters(decor.SizeB1024(0), "% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
	proxy := bar.ProxyReader(file)

	done := func() {
		proxy.Close()
		bar.Abort(false)
	}
	return proxy, done, nil
}

// Wait blocks until all bars have rendered their final state.
func (u *uploadProgress) Wait() {
	u.progress.Wait()
}
