package runner

import "github.com/cuongbtq/media-relay/internal/downloader/domain"

// commonArgs are passed to every invocation
func (r *Runner) commonArgs() []string {
	args := []string{
		"--no-playlist",
		"--no-check-certificates",
		"--no-warnings",
	}
	if r.proxy != "" {
		args = append(args, "--proxy", r.proxy)
	}
	return args
}

func (r *Runner) probeArgs(url string) []string {
	args := r.commonArgs()
	args = append(args, "--dump-json", "--skip-download")
	return append(args, "--", url)
}

func (r *Runner) downloadArgs(req Request) []string {
	args := r.commonArgs()
	args = append(args,
		"--no-progress",
		"--output", req.OutputTemplate,
	)

	switch req.Format {
	case domain.FormatAudio:
		selector := req.Selector
		if selector == "" {
			selector = "bestaudio"
		}
		args = append(args, "--format", selector, "--extract-audio", "--audio-quality", "0")
		if r.audioFormat != "" {
			args = append(args, "--audio-format", r.audioFormat)
		}
	default:
		selector := req.Selector
		if selector == "" {
			selector = domain.FallbackSelector
		}
		args = append(args, "--format", selector)
		if r.videoFormat != "" {
			args = append(args, "--merge-output-format", r.videoFormat)
		}
	}

	return append(args, "--", req.URL)
}
