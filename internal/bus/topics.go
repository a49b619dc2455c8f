package bus

import "strconv"

// ShardTopic names the topic a T2 shard's proposals and validations travel
// on: "shard-<k>".
func ShardTopic(shardIndex int) string {
	return "shard-" + strconv.Itoa(shardIndex)
}

// RemoteTopic names the topic used for inter-tier traffic addressed to a
// specific remote node: "RemoteURI-<n>".
func RemoteTopic(nodeIndex int) string {
	return "RemoteURI-" + strconv.Itoa(nodeIndex)
}
