// Command apnsend sends a single push notification through the APNs
// legacy binary gateway. It exists to exercise GatewayClient's public
// API from the command line; it is not part of the library surface.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coccodrillo/apns"
)

var (
	token            = flag.String("device-token", "", "64 hex character device token (required)")
	pemFile          = flag.String("pem", "", "combined certificate+key PEM file")
	certFile         = flag.String("cert", "", "certificate PEM file (used with -key)")
	keyFile          = flag.String("key", "", "private key PEM file (used with -cert)")
	p12File          = flag.String("p12", "", "PKCS#12 certificate bundle")
	p12Password      = flag.String("p12-password", "", "password for -p12")
	sandbox          = flag.Bool("sandbox", false, "use the sandbox gateway instead of production")
	alert            = flag.String("alert", "", "alert text")
	sound            = flag.String("sound", "", "notification sound name")
	category         = flag.String("category", "", "notification category")
	badge            = flag.Int("badge", -1, "badge count; omit the flag to leave the badge unset")
	contentAvailable = flag.Bool("content-available", false, "set aps.content-available")
	priority         = flag.Int("priority", 10, "notification priority: 10 (immediate) or 5 (power-conserving)")
	expiry           = flag.Int("expiry", 0, "UNIX time the notification may be discarded after, 0 for immediate-only")
	timeout          = flag.Duration("timeout", 5*time.Second, "connect timeout")
	wait             = flag.Duration("wait", 2*time.Second, "how long to wait for an error-response before exiting")
)

func loadCertificate() (tls.Certificate, error) {
	switch {
	case *p12File != "":
		return apns.LoadPKCS12File(*p12File, *p12Password)
	case *pemFile != "":
		pemBytes, err := os.ReadFile(*pemFile)
		if err != nil {
			return tls.Certificate{}, err
		}
		return apns.LoadCombinedPEM(pemBytes)
	case *certFile != "":
		return apns.LoadCertificateFile(*certFile, *keyFile)
	default:
		return tls.Certificate{}, fmt.Errorf("one of -pem, -cert/-key, or -p12 is required")
	}
}

func main() {
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -device-token")
		flag.Usage()
		os.Exit(1)
	}

	cert, err := loadCertificate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading certificate: %v\n", err)
		os.Exit(1)
	}

	var badgePtr *int
	if *badge >= 0 {
		badgePtr = badge
	}

	var alertValue interface{}
	if *alert != "" {
		alertValue = *alert
	}

	payload, err := apns.NewPayload(alertValue, badgePtr, *sound, *category, nil, *contentAvailable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building payload: %v\n", err)
		os.Exit(1)
	}

	client := apns.NewGatewayClient(apns.GatewayConfig{
		Sandbox:     *sandbox,
		TLSConfig:   apns.ClientTLSConfig(cert),
		DialTimeout: *timeout,
	})
	defer client.Close()

	client.RegisterResponseListener(func(resp apns.ErrorResponse) {
		fmt.Fprintf(os.Stderr, "apns error-response: identifier=%d status=%s\n", resp.Identifier, resp.Status)
	})

	if err := client.SendWithOptions(*token, payload, 0, uint32(*expiry), uint8(*priority)); err != nil {
		fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("notification sent")
	time.Sleep(*wait)
}
