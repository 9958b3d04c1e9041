// rewrite - command line front end for the unit rewrite pipeline
package main

func main() {
	Execute()
}
