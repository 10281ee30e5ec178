// Command apnsfeedback drains the APNs feedback service and prints
// every (token, fail_time) pair it reports.
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
	pemFile     = flag.String("pem", "", "combined certificate+key PEM file")
	certFile    = flag.String("cert", "", "certificate PEM file (used with -key)")
	keyFile     = flag.String("key", "", "private key PEM file (used with -cert)")
	p12File     = flag.String("p12", "", "PKCS#12 certificate bundle")
	p12Password = flag.String("p12-password", "", "password for -p12")
	sandbox     = flag.Bool("sandbox", false, "use the sandbox feedback service instead of production")
	timeout     = flag.Duration("timeout", 5*time.Second, "connect timeout")
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

	cert, err := loadCertificate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading certificate: %v\n", err)
		os.Exit(1)
	}

	client := apns.NewFeedbackClient(apns.FeedbackConfig{
		Sandbox:     *sandbox,
		TLSConfig:   apns.ClientTLSConfig(cert),
		DialTimeout: *timeout,
	})

	records, err := client.Stream()
	if err != nil {
		fmt.Fprintf(os.Stderr, "draining feedback service: %v\n", err)
		os.Exit(1)
	}

	for _, r := range records {
		fmt.Printf("%s\t%s\n", r.Token, r.FailTime.Format(time.RFC3339))
	}
	fmt.Fprintf(os.Stderr, "%d record(s)\n", len(records))
}
