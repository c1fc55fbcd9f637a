package snowflake

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once

	errInvalidMachineID    = errors.New("invalid snowflake machine id")
	errInvalidDataCenterID = errors.New("invalid snowflake datacenter id")
	errGeneratorUninitial  = errors.New("snowflake generator is not initialized")
)

// Init 节点号由 datacenter(5 bit) 和 machine(5 bit) 组成，只生效一次。
func Init(machineID, dataCenterID int64) error {
	var initErr error

	once.Do(func() {
		if machineID < 0 || machineID > 31 {
			initErr = errInvalidMachineID
			return
		}
		if dataCenterID < 0 || dataCenterID > 31 {
			initErr = errInvalidDataCenterID
			return
		}

		n, err := snowflake.NewNode((dataCenterID << 5) | machineID)
		if err != nil {
			initErr = err
			return
		}
		node = n
	})

	return initErr
}

func NextID() (int64, error) {
	if node == nil {
		return 0, errGeneratorUninitial
	}
	return node.Generate().Int64(), nil
}

// NextString 字符串形式，用于对外暴露的 public id 和消息 id
func NextString() (string, error) {
	if node == nil {
		return "", errGeneratorUninitial
	}
	return node.Generate().String(), nil
}
