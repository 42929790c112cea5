package main

import "github.com/fashionstore/payments-service/cmd"

func main() {
	cmd.Execute()
}
