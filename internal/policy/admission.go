package policy

// Admit runs the check table in order and returns the first failure, or nil
// when the contribution may be accepted. It never aggregates failures; that
// is Evaluate's job.
func Admit(in Input) error {
	for _, c := range Checks {
		if err := c.Run(in); err != nil {
			return err
		}
	}
	return nil
}
