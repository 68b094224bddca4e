package jarverifier_test

import (
	"fmt"
	"os"

	"github.com/avast/jarverifier"
	"github.com/avast/jarverifier/apilevel"
)

func Example() {
	res, err := jarverifier.VerifyFile(os.Args[1], apilevel.V_AnyMin, apilevel.V_AnyMax)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %s\n", err.Error())
		return
	}

	fmt.Printf("Verified: %v\n", res.Verified)
	if err := res.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	}

	cert, _ := res.BestCert()
	if cert == nil {
		fmt.Printf("No certificate found.\n")
	} else {
		fmt.Println(cert)
	}
}
