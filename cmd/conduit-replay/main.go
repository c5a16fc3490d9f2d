// SPDX-License-Identifier: GPL-3.0-or-later

// Command conduit-replay replays scripted packet scenarios through the
// connection tracking pipeline and prints what leaves it.
package main

func main() {
	Execute()
}
