package model

// Strategy selects how operations are routed across backend instances
type Strategy string

const (
	// StrategySingle routes everything to one instance
	StrategySingle Strategy = "single"
	// StrategyReadWriteSplit routes writes to the write instance and reads
	// to the read instance, falling back to the write instance when no
	// distinct read instance is configured
	StrategyReadWriteSplit Strategy = "read_write_split"
	// StrategyLoadBalance distributes operations round-robin across the
	// instances tagged for the requested role
	StrategyLoadBalance Strategy = "load_balance"
)

// Valid checks if the strategy is one of the known values
func (s Strategy) Valid() bool {
	switch s {
	case StrategySingle, StrategyReadWriteSplit, StrategyLoadBalance:
		return true
	default:
		return false
	}
}

// ServiceRole is the operation set this process is permitted to perform
type ServiceRole string

const (
	ServiceEncrypt ServiceRole = "encrypt"
	ServiceDecrypt ServiceRole = "decrypt"
	ServiceMixed   ServiceRole = "mixed"
)

// Valid checks if the service role is one of the known values
func (r ServiceRole) Valid() bool {
	switch r {
	case ServiceEncrypt, ServiceDecrypt, ServiceMixed:
		return true
	default:
		return false
	}
}

// AllowsEncrypt reports whether encrypt operations are permitted
func (r ServiceRole) AllowsEncrypt() bool {
	return r == ServiceEncrypt || r == ServiceMixed
}

// AllowsDecrypt reports whether decrypt operations are permitted
func (r ServiceRole) AllowsDecrypt() bool {
	return r == ServiceDecrypt || r == ServiceMixed
}
