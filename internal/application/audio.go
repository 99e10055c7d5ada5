package application

import "context"

// AudioPlayer plays a sound file at the given mixer volume. Play blocks until
// playback ends and gives no guarantee on how long that takes.
type AudioPlayer interface {
	Play(ctx context.Context, path string, volumePercent int) error
}
