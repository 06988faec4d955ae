// Package sparkle exchanges end-to-end encrypted text messages through an
// untrusted, shared realtime store.
//
// Every party owns an RSA-4096 key pair. Its public identifier is the hex
// SHA-256 of the public modulus, so anyone holding the identifier can look
// up the published key and send to it. Each message gets a fresh AES-256-GCM
// key, wrapped for the recipient with RSA-OAEP-SHA-512. The store only ever
// sees envelopes.
//
// Basic usage:
//
//	st, err := rtdb.Dial(rtdb.Config{URL: "https://example.firebaseio.com"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := sparkle.New(st)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	me, err := client.CreateIdentity(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := me.Publish(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("share this:", me.Identifier())
//
//	// Send to a peer
//	if _, err := me.SendTo(ctx, peerID, "hello"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wait for a reply
//	msg, err := me.WaitForMessage(ctx, sparkle.WithFrom(peerID))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(msg.Text)
//
// Identifiers are not proof of ownership: whoever last wrote a key under an
// identifier's path is who Peer returns.
package sparkle
