package sqlinline

const QInsertRequest = `--sql d6f43284-831e-4364-ba1b-4b742da70a5f
insert into generation_requests(
  user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider
) values (
  $1::uuid, $2::text, $3::text, 0, $4::text, $5::text, $6::text, $7::int, $8::text, $9::text
)
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QSelectRequest = `--sql 7b6dc3b5-4dab-4477-bb6d-207fd980c8d3
select id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at
from generation_requests
where id = $1::uuid
  and ($2::text = '' or user_id = nullif($2::text, '')::uuid)
limit 1;
`

const QListRequests = `--sql e4ea5741-0079-44ff-8391-a50c1cd34f7c
select id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at
from generation_requests
where user_id = $1::uuid
  and ($2::text = '' or status = $2::text)
  and ($3::text = '' or kind = $3::text)
order by created_at desc
limit $4::int offset $5::int;
`

const QUpdateRequestDraft = `--sql 7e1a95e3-28a7-4b9b-a6a4-8df78eefc287
update generation_requests
set prompt = $3::text,
    source_image_url = $4::text,
    aspect_ratio = $5::text,
    quantity = $6::int,
    style = $7::text,
    provider = $8::text,
    updated_at = now()
where id = $1::uuid
  and user_id = $2::uuid
  and status = 'new'
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QDeleteRequest = `--sql 2f6b54d5-96d2-4149-a94c-c0bd33ebb0ad
delete from generation_requests
where id = $1::uuid
  and user_id = $2::uuid
  and status <> 'processing'
returning id;
`

const QTransitionRequest = `--sql 0c6dfe98-4479-410f-bc49-34cc49e2cbff
update generation_requests
set status = $3::text,
    progress = case when $3::text = 'pending' then 0 else progress end,
    attempts = case when $2::text = 'failed' and $3::text = 'pending' then attempts + 1 else attempts end,
    error_message = case when $3::text = 'pending' then '' else error_message end,
    completed_at = case when $3::text = 'pending' then null else completed_at end,
    updated_at = now()
where id = $1::uuid
  and status = $2::text
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QUpdateRequestProgress = `--sql 7f96009d-b519-4f00-9495-5be7c71eb6f7
update generation_requests
set progress = greatest(progress, least($2::int, 99)),
    updated_at = now()
where id = $1::uuid
  and status = 'processing';
`

const QCompleteRequest = `--sql 166becaa-bc9c-43ca-a685-fa9065b2cd20
update generation_requests
set status = 'completed',
    progress = 100,
    result_url = $2::text,
    result_json = coalesce($3::jsonb, '{}'::jsonb),
    refined_prompt = $4::text,
    fallback = $5::boolean,
    error_message = '',
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and status = 'processing'
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QFailRequest = `--sql 7c476c33-4fb3-4779-8d4f-f6f54bcbf1e3
update generation_requests
set status = 'failed',
    error_message = $3::text,
    completed_at = now(),
    updated_at = now()
where id = $1::uuid
  and status = $2::text
returning id, user_id, kind, status, progress, prompt, source_image_url, aspect_ratio, quantity, style, provider,
  result_url, result_json, refined_prompt, error_message, fallback, attempts, created_at, updated_at, started_at, completed_at;
`

const QCountRequestsByStatus = `--sql 4f499910-ebd8-4106-984d-34d127965609
select status, count(*)::int
from generation_requests
where user_id = $1::uuid
group by status;
`
