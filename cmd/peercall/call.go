package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peercall/peercall/internal/coordinator"
)

// runCall pumps stdin lines into the room until EOF or an interrupt, then
// hangs up.
func runCall(coord *coordinator.Coordinator) error {
	fmt.Printf("room %s — you are %s\n", coord.Room(), shortID(coord.SelfID()))
	fmt.Println("type to chat, ctrl-d to hang up")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case line := <-lines:
			if line == "" {
				continue
			}
			if err := coord.SendData([]byte(line)); err != nil {
				_ = coord.EndCall()
				return err
			}
		case err := <-scanErr:
			_ = coord.EndCall()
			return err
		case <-sig:
			fmt.Println("\nhanging up")
			return coord.EndCall()
		}
	}
}
