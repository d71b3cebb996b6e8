package sqlinline

const QInsertJob = `--sql 6fddcfde-08be-466e-9bbe-41637fc57259
insert into jobs(
  id, owner_id, scope_id, type, status, parent_job_id,
  progress, total_steps, input_json
)
values (
  $1::uuid, $2::text, nullif($3::text, ''), $4::text, 'pending', $5::uuid,
  0, $6::int, coalesce($7::jsonb, '{}'::jsonb)
)
returning created_at, updated_at;
`

const QClaimJob = `--sql f0211a58-7711-4cd4-8fb6-a78934fbd161
update jobs
set status = 'processing', started_at = now(), updated_at = now()
where id = $1::uuid and status = 'pending'
returning id, owner_id, coalesce(scope_id, ''), type, status, parent_job_id,
  progress, current_step, total_steps, coalesce(progress_message, ''),
  input_json, result_json, coalesce(error_message, ''),
  created_at, started_at, completed_at, updated_at;
`

const QClaimNextJob = `--sql 91afebac-04a3-4e8c-aa70-ba1d85f13dd4
with next_job as (
    select id
    from jobs
    where status = 'pending'
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update jobs
    set status = 'processing', started_at = now(), updated_at = now()
    where id in (select id from next_job)
    returning id, owner_id, coalesce(scope_id, ''), type, status, parent_job_id,
      progress, current_step, total_steps, coalesce(progress_message, ''),
      input_json, result_json, coalesce(error_message, ''),
      created_at, started_at, completed_at, updated_at
)
select * from claimed;
`

const QReportJobProgress = `--sql 32ad7e0e-afba-40b2-81ee-100deaa49f4f
update jobs
set progress = $2::int,
    current_step = coalesce($3::int, current_step),
    progress_message = coalesce(nullif($4::text, ''), progress_message),
    updated_at = now()
where id = $1::uuid and status = 'processing' and progress <= $2::int;
`

const QSelectJobStatusProgress = `--sql 7a4ed8f8-81bf-4a25-a7db-236c17daf9a4
select status, progress from jobs where id = $1::uuid;
`

const QCompleteJob = `--sql 49ea1019-ef31-4e3c-9572-4cdd31316472
update jobs
set status = 'completed', result_json = $2::jsonb, progress = 100,
    completed_at = now(), updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QFailJob = `--sql c3a008f3-6422-47ad-8a5e-f297970b7ab1
update jobs
set status = 'failed', error_message = $2::text,
    completed_at = now(), updated_at = now()
where id = $1::uuid and status = 'processing';
`

const QCancelJob = `--sql b036d076-dd1a-4159-99f2-741a24b4eaa9
update jobs
set status = 'cancelled', completed_at = now(), updated_at = now()
where id = $1::uuid and status in ('pending', 'processing');
`

const QSelectJobByID = `--sql c000e6fc-8ee6-41ed-9cd1-6acf9bdd75f1
select id, owner_id, coalesce(scope_id, ''), type, status, parent_job_id,
  progress, current_step, total_steps, coalesce(progress_message, ''),
  input_json, result_json, coalesce(error_message, ''),
  created_at, started_at, completed_at, updated_at
from jobs
where id = $1::uuid;
`

const QListJobsForOwner = `--sql f10caa82-0a5b-47be-b349-fda10f4950b9
select id, owner_id, coalesce(scope_id, ''), type, status, parent_job_id,
  progress, current_step, total_steps, coalesce(progress_message, ''),
  input_json, result_json, coalesce(error_message, ''),
  created_at, started_at, completed_at, updated_at
from jobs
where owner_id = $1::text
  and (cardinality($2::text[]) = 0 or status = any($2::text[]))
order by created_at desc
limit $3::int;
`

const QFailStaleJobs = `--sql 1338cdcb-567e-4064-82e5-ca7318e93108
update jobs
set status = 'failed', error_message = $2::text,
    completed_at = now(), updated_at = now()
where status = 'processing' and updated_at < $1::timestamptz;
`
