package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the RF companion daemon: a phone
 *		or any other client asks, over Bluetooth serial, a
 *		pseudo terminal or TCP, for a stored remote control
 *		signal, and this sends it on the transmitter.
 *
 *---------------------------------------------------------------*/

import (
	rfcompanion "github.com/doismellburning/rfcompanion/src"
)

func main() {
	rfcompanion.CompanionMain()
}
