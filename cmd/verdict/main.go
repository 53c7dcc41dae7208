// Command verdict evaluates business ideas with a panel of model agents.
package main

func main() {
	Execute()
}
