package main

import (
	rfcompanion "github.com/doismellburning/rfcompanion/src"
)

func main() {
	rfcompanion.RftraceMain()
}
