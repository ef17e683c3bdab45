// Command facemesh draws face mesh landmarks over a camera feed, records
// them, and replays recordings.
package main

func main() {
	Execute()
}
