// Command passportread is a demo ICAO 9303 eMRTD reader: it connects to
// the first PC/SC reader, drives pkg/passport's full read sequence
// against whatever document is presented, and prints the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ebfe/scard"
	"github.com/corverto/emrtd/pkg/bac"
	"github.com/corverto/emrtd/pkg/passport"
)

func main() {
	docNumber := flag.String("doc", "", "document number, without its check digit (e.g. L898902C)")
	dob := flag.String("dob", "", "date of birth, YYMMDD")
	doe := flag.String("doe", "", "date of expiry, YYMMDD")
	skipCA := flag.Bool("skip-ca", false, "disable Chip Authentication")
	skipPACE := flag.Bool("skip-pace", false, "force Basic Access Control, skipping PACE")
	flag.Parse()

	if *docNumber == "" || *dob == "" || *doe == "" {
		log.Fatal("usage: passportread -doc L898902C -dob 740812 -doe 120415")
	}

	mrzInfo := bac.MRZKeyInfo{
		DocumentNumber: *docNumber,
		DateOfBirth:    *dob,
		DateOfExpiry:   *doe,
	}.DocumentKeySeed()

	// --- 1. Hardware Setup ---
	ctx, card := connectToCard()

	defer func() {
		if err := ctx.Release(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()
	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: Failed to disconnect card: %v", err)
		}
	}()

	// --- 2. Logic Setup ---
	opts := passport.NewOptions()
	opts.SkipCA = *skipCA
	opts.SkipPACE = *skipPACE
	opts.OnDisplayMessage = func(msg passport.DisplayMessage) *string {
		text := msg.DefaultText()
		fmt.Println(">>", text)
		return &text
	}

	// --- 3. Execution Flow ---
	readCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := passport.ReadDocument(readCtx, &pcscTransport{card: card}, mrzInfo, opts)
	if err != nil {
		log.Fatalf("Read failed: %v", err)
	}

	fmt.Println("\n=============================================")
	fmt.Println(" Read Finished")
	fmt.Println("=============================================")
	fmt.Println(result.Describe())
}

// connectToCard handles the PC/SC context establishment and reader
// connection, in the same shape every contact/contactless demo in this
// repo's lineage uses.
func connectToCard() (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatal("No smart card reader found.")
	}

	fmt.Printf(">> Using reader: %s\n", readers[0])

	card, err := ctx.Connect(readers[0], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}

// pcscTransport adapts an *scard.Card to passport.Transport. Context
// cancellation isn't observed mid-exchange (scard.Card.Transmit blocks
// until the reader returns), matching the teacher's own scard usage,
// which never threads a context into Client.Send either.
type pcscTransport struct {
	card *scard.Card
}

func (t *pcscTransport) Connect(ctx context.Context) error {
	return nil
}

func (t *pcscTransport) Transceive(ctx context.Context, cmd []byte) ([]byte, error) {
	return t.card.Transmit(cmd)
}

func (t *pcscTransport) Invalidate(message string) {
	log.Printf("session invalidated: %s", message)
}
